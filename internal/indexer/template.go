package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/dshills/filesift/internal/chunker"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/runstate"
	"github.com/dshills/filesift/internal/scanner"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// DefaultPageSize is how many Waiting records are fetched per page
const DefaultPageSize = 1000

// Status messages stored with a record
const (
	MsgSuccess      = "success"
	MsgSkippedEmpty = "skipped empty content"
)

// Template runs the indexing loop for one file category. Everything
// category-specific lives in its ContentSource.
type Template struct {
	category types.FileCategory
	source   ContentSource
	store    storage.Storage
	embedder embedder.Embedder
	splitter *chunker.Splitter
	flags    *runstate.Flags
	progress *EmbeddingProgress
	emit     func(types.ProgressEvent)
	pageSize int
	logger   *slog.Logger
}

// Category returns the category this template indexes
func (t *Template) Category() types.FileCategory {
	return t.category
}

// fatal reports errors that end the run rather than fail a single file
func fatal(err error) bool {
	return errors.Is(err, embedder.ErrSessionUnavailable) ||
		errors.Is(err, embedder.ErrLockTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Process embeds every Waiting record of the category. Records whose file
// disappeared are deleted. Per-file failures are counted and recorded on the
// record; only embedding-session failures are returned.
func (t *Template) Process(ctx context.Context, taskID int64) error {
	total, err := t.store.CountUnindexedFiles(ctx, t.category)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	t.progress.AddTotal(total)
	t.progress.Start()
	defer t.progress.Stop()

	start := time.Now()
	t.logger.Info("indexing started", "pending", total, "task_id", taskID)

	maxLoop := int(total/int64(t.pageSize)) + 1
	var cursor int64
	for loop := 0; loop < maxLoop; loop++ {
		if t.stopped(ctx) {
			return ctx.Err()
		}
		records, err := t.store.ListUnindexedFiles(ctx, t.category, cursor, t.pageSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			cursor = max(cursor, rec.ID)
			if t.stopped(ctx) {
				return ctx.Err()
			}
			if err := t.processRecord(ctx, taskID, rec); err != nil {
				return err
			}
		}
	}

	snap := t.progress.Snapshot()
	t.logger.Info("indexing finished",
		"processed", snap.Processed,
		"success", snap.Success,
		"failed", snap.Failed,
		"skipped", snap.Skipped,
		"duration", time.Since(start))
	return nil
}

func (t *Template) stopped(ctx context.Context) bool {
	return t.flags.StopRequested() || ctx.Err() != nil
}

func (t *Template) processRecord(ctx context.Context, taskID int64, rec *types.FileRecord) error {
	t.progress.IncProcessed()

	if _, err := os.Stat(rec.Path); errors.Is(err, fs.ErrNotExist) {
		t.progress.IncFailed()
		if err := t.store.DeleteFile(ctx, rec.ID); err != nil {
			t.logger.Warn("failed to delete missing file", "path", rec.Path, "error", err)
		}
		return nil
	}

	if t.emit != nil {
		t.emit(types.ProgressEvent{Kind: types.ProgressEmbed, TaskID: taskID, Message: rec.Path})
	}
	return t.EmbedFile(ctx, rec)
}

// EmbedFile extracts, stores and embeds one record, replacing any embeddings
// it had. The outcome is recorded in the record's statuses and the progress
// counters; the returned error is non-nil only when the run must end.
func (t *Template) EmbedFile(ctx context.Context, rec *types.FileRecord) error {
	if err := t.store.UpdateContentStatus(ctx, rec.ID, types.StatusIndexing, ""); err != nil {
		return err
	}

	err := t.embedFile(ctx, rec)
	if err != nil && fatal(err) {
		// Leave the record for the next run
		if resetErr := t.store.UpdateContentStatus(context.WithoutCancel(ctx), rec.ID, types.StatusWaiting, ""); resetErr != nil {
			t.logger.Warn("failed to reset content status", "path", rec.Path, "error", resetErr)
		}
		return err
	}
	if err != nil {
		t.progress.IncFailed()
		t.logger.Warn("failed to index file", "path", rec.Path, "error", err)
		if statusErr := t.store.UpdateContentStatus(ctx, rec.ID, types.StatusIndexFailed, err.Error()); statusErr != nil {
			t.logger.Warn("failed to record failure", "path", rec.Path, "error", statusErr)
		}
	}
	return nil
}

func (t *Template) embedFile(ctx context.Context, rec *types.FileRecord) error {
	content, err := t.source.Load(ctx, rec)
	if err != nil {
		if fatal(err) {
			return err
		}
		t.logger.Warn("failed to load content", "path", rec.Path, "error", err)
		content = ""
	}
	content = chunker.CollapseNewlines(content)

	meta := rec.Metadata
	if info, err := scanner.Stat(rec.Path); err == nil {
		meta = info.Metadata
	}
	if err := t.store.UpdateFileContent(ctx, rec.ID, content, meta); err != nil {
		return fmt.Errorf("failed to store content: %w", err)
	}
	if err := t.store.DeleteEmbeddings(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}

	if err := t.embedMetadata(ctx, rec.ID, meta); err != nil {
		return err
	}

	if content == "" {
		t.progress.IncSkipped()
		return t.store.UpdateContentStatus(ctx, rec.ID, types.StatusIndexed, MsgSkippedEmpty)
	}

	// Chunks are stored together so a failed file never keeps a partial set
	chunks := t.splitter.Split(content)
	embs := make([]*storage.ContentEmbedding, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := t.embedder.Embed(ctx, chunk)
		if err != nil {
			if fatal(err) {
				return err
			}
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		embs = append(embs, &storage.ContentEmbedding{FileID: rec.ID, ChunkIndex: i, ChunkText: chunk, Vector: vector})
	}
	if err := t.store.ReplaceContentEmbeddings(ctx, rec.ID, embs); err != nil {
		return err
	}

	t.progress.IncSuccess()
	return t.store.UpdateContentStatus(ctx, rec.ID, types.StatusIndexed, MsgSuccess)
}

// embedMetadata embeds the metadata sentence. Only fatal errors are returned;
// other failures mark the metadata status and let content indexing continue.
func (t *Template) embedMetadata(ctx context.Context, fileID int64, meta types.FileMetadata) error {
	vector, err := t.embedder.Embed(ctx, meta.Text())
	if err == nil {
		err = t.store.InsertMetadataEmbedding(ctx, &storage.MetadataEmbedding{FileID: fileID, Vector: vector})
	}
	if err != nil {
		if fatal(err) {
			return err
		}
		return t.store.UpdateMetaStatus(ctx, fileID, types.StatusIndexFailed, err.Error())
	}
	return t.store.UpdateMetaStatus(ctx, fileID, types.StatusIndexed, MsgSuccess)
}
