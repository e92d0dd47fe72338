package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/indexer"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// Status is a point-in-time view of the engine
type Status struct {
	Scanning       bool                     `json:"scanning"`
	Indexing       bool                     `json:"indexing"`
	StopRequested  bool                     `json:"stop_requested"`
	Scanned        int64                    `json:"scanned"`
	Document       indexer.ProgressSnapshot `json:"document"`
	Image          indexer.ProgressSnapshot `json:"image"`
	Audio          indexer.ProgressSnapshot `json:"audio"`
	Totals         indexer.ProgressSnapshot `json:"totals"`
	CachedPaths    int                      `json:"cached_paths"`
	EmbeddingModel string                   `json:"embedding_model"`
	ModelChanged   bool                     `json:"model_changed"`
	LatestTask     *types.IndexingTask      `json:"latest_task,omitempty"`
}

// Status reports the run flags, the live summary and the latest task
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	summary := e.indexer.Summary()
	st := &Status{
		Scanning:       e.flags.Scanning(),
		Indexing:       e.flags.Indexing(),
		StopRequested:  e.flags.StopRequested(),
		Scanned:        summary.Scanned(),
		Document:       summary.Document.Snapshot(),
		Image:          summary.Image.Snapshot(),
		Audio:          summary.Audio.Snapshot(),
		Totals:         summary.Totals(),
		CachedPaths:    e.paths.Len(),
		EmbeddingModel: e.embedding.ModelName(),
	}

	task, err := e.store.LatestTask(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		st.LatestTask = task
		st.ModelChanged = task.EmbeddingModel != st.EmbeddingModel
	}
	return st, nil
}

// EmbeddingModelChanged reports whether the latest run used a different
// embedding model than the current one, meaning stored vectors are stale
func (e *Engine) EmbeddingModelChanged(ctx context.Context) (bool, error) {
	task, err := e.store.LatestTask(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return task.EmbeddingModel != e.embedding.ModelName(), nil
}

// SetContentLanguage persists the content language. A change unloads the
// embedding session so the next embed loads the model for that language.
func (e *Engine) SetContentLanguage(language string) error {
	var changed bool
	err := e.settings.Update(func(s *config.Settings) {
		changed = s.ContentLanguage != language
		s.ContentLanguage = language
	})
	if err != nil {
		return err
	}
	if changed {
		e.embedding.SetLanguage(language)
		e.embedding.Clear()
		e.query.Purge()
		e.searcher.InvalidateCache()
		e.logger.Info("content language changed", "language", language)
	}
	return nil
}

// AddWatchedPath persists path as a watched root, subscribes the watcher to
// it and indexes it in the background
func (e *Engine) AddWatchedPath(ctx context.Context, path string) error {
	if path == "" {
		return types.ErrEmptyPaths
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}
	if err := e.watcher.AddPath(path); err != nil {
		return err
	}
	e.logger.Info("watching path", "path", path)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.BackgroundIndex(e.ctx, path); err != nil {
			e.logger.Warn("background indexing of watched path failed", "path", path, "error", err)
		}
	}()
	return nil
}

// RemoveWatchedPath stops watching path. Indexed records are kept.
func (e *Engine) RemoveWatchedPath(_ context.Context, path string) error {
	if path == "" {
		return types.ErrEmptyPaths
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := e.watcher.RemovePath(path); err != nil {
		return err
	}
	e.logger.Info("stopped watching path", "path", path)
	return nil
}
