package engine

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dshills/filesift/internal/indexer"
	"github.com/dshills/filesift/internal/scanner"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// IndexFile registers path and embeds it when its content is waiting. Ignored
// paths and media the current settings cannot analyze are left alone. While a
// run is in flight the record is only registered; it stays Waiting for the
// run's templates.
func (e *Engine) IndexFile(ctx context.Context, path string) error {
	rec, _, err := e.scanner.ScanFile(ctx, path)
	if errors.Is(err, scanner.ErrIgnored) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec == nil || rec.IsInvalid || rec.ContentStatus != types.StatusWaiting {
		return nil
	}
	if e.flags.Busy() {
		e.logger.Debug("run in progress, leaving file for it", "path", rec.Path)
		return nil
	}

	var source indexer.ContentSource
	switch rec.Category {
	case types.CategoryDocument:
		source = indexer.DocumentSource{Registry: e.registry}
	case types.CategoryImage, types.CategoryAudio:
		st := e.settings.Get()
		if st.Indexer.IsPrivate {
			return nil
		}
		a, err := e.newAnalyzers(st.Platform)
		if err != nil {
			return err
		}
		if rec.Category == types.CategoryImage {
			if !a.SupportsImage() {
				return nil
			}
			source = indexer.ImageSource{Analyzer: a.Image, Model: a.VisionModel}
		} else {
			if !a.SupportsAudio() {
				return nil
			}
			source = indexer.AudioSource{Analyzer: a.Audio, Model: a.AudioModel}
		}
	default:
		return nil
	}

	defer e.searcher.InvalidateCache()
	return e.indexer.NewTemplate(rec.Category, source, nil).EmbedFile(ctx, rec)
}

// RemoveFileIndex deletes the record at path and its embeddings. A path with
// no record is not an error.
func (e *Engine) RemoveFileIndex(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	rec, err := e.store.GetFileByPath(ctx, filepath.Clean(path))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e.paths.Remove(rec.Path, false)
	defer e.searcher.InvalidateCache()
	return e.store.DeleteFile(ctx, rec.ID)
}

// RemoveDirectoryIndex deletes every record below dir and their embeddings
func (e *Engine) RemoveDirectoryIndex(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	dir = filepath.Clean(dir)
	e.paths.Remove(dir, true)
	n, err := e.store.DeleteFilesByPrefix(ctx, dir)
	if err != nil {
		return err
	}
	e.searcher.InvalidateCache()
	e.logger.Debug("removed directory index", "dir", dir, "records", n)
	return nil
}

// RenameFile moves the record at from to to without re-embedding. It reports
// false when from has no record. A record already at to is replaced.
func (e *Engine) RenameFile(ctx context.Context, from, to string) (bool, error) {
	from, to = filepath.Clean(from), filepath.Clean(to)
	rec, err := e.store.GetFileByPath(ctx, from)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if existing, err := e.store.GetFileByPath(ctx, to); err == nil && existing.ID != rec.ID {
		e.paths.Remove(to, false)
		if err := e.store.DeleteFile(ctx, existing.ID); err != nil {
			return false, err
		}
	}
	if err := e.store.RenameFile(ctx, rec.ID, to); err != nil {
		return false, err
	}
	e.paths.Remove(from, false)
	e.refreshPaths(ctx)
	return true, nil
}

// RenameDirectory rewrites the path prefix of every record below from and
// returns how many moved
func (e *Engine) RenameDirectory(ctx context.Context, from, to string) (int64, error) {
	from, to = filepath.Clean(from), filepath.Clean(to)
	n, err := e.store.CountFilesByPrefix(ctx, from)
	if err != nil || n == 0 {
		return 0, err
	}
	moved, err := e.store.ReplacePathPrefix(ctx, from, to)
	if err != nil {
		return 0, err
	}
	e.paths.Remove(from, true)
	e.refreshPaths(ctx)
	return moved, nil
}

// refreshPaths makes moved records searchable under their new paths right
// away instead of at the next refresher tick
func (e *Engine) refreshPaths(ctx context.Context) {
	e.searcher.InvalidateCache()
	if err := e.paths.Refresh(ctx); err != nil {
		e.logger.Warn("failed to refresh path cache", "error", err)
	}
}
