package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dshills/filesift/internal/extractor"
	"github.com/dshills/filesift/internal/indexer"
	"github.com/dshills/filesift/pkg/types"
)

// Finish messages
const (
	MsgDone        = "done"
	MsgStopped     = "stopped"
	MsgPrivacySkip = "Privacy setting: skip indexing image and audio"
)

// StartIndexing begins a run over paths in the background and returns its
// task. It fails with types.ErrEmptyPaths or types.ErrIndexingInProgress
// without side effects.
func (e *Engine) StartIndexing(ctx context.Context, paths []string) (*types.IndexingTask, error) {
	task, err := e.beginRun(ctx, paths)
	if err != nil {
		return nil, err
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = e.run(e.ctx, task)
	}()
	return cloneTask(task), nil
}

// RunIndexing runs an indexing pass over paths and returns the finished
// task. A missing platform API key is returned as an error after the run has
// been finalized.
func (e *Engine) RunIndexing(ctx context.Context, paths []string) (*types.IndexingTask, error) {
	task, err := e.beginRun(ctx, paths)
	if err != nil {
		return nil, err
	}
	err = e.run(ctx, task)
	return cloneTask(task), err
}

// StopIndexing asks the run in flight to stop at the next file or page
// boundary. It reports whether a run was in flight.
func (e *Engine) StopIndexing() bool {
	if !e.flags.Busy() {
		return false
	}
	e.flags.RequestStop()
	e.logger.Info("stop requested")
	return true
}

func (e *Engine) beginRun(ctx context.Context, paths []string) (*types.IndexingTask, error) {
	paths = cleanPaths(paths)
	if len(paths) == 0 {
		return nil, types.ErrEmptyPaths
	}
	if e.flags.Scanning() || !e.flags.TryBeginRun() {
		return nil, types.ErrIndexingInProgress
	}

	task := &types.IndexingTask{
		Paths:          paths,
		EmbeddingModel: e.embedding.ModelName(),
		Status:         types.TaskRunning,
		StartTime:      time.Now(),
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		e.flags.EndRun()
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	e.indexer.Summary().Reset()

	e.taskMu.Lock()
	e.task = task
	e.taskMu.Unlock()
	return task, nil
}

func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

func cloneTask(t *types.IndexingTask) *types.IndexingTask {
	c := *t
	c.Paths = append([]string(nil), t.Paths...)
	return &c
}

// runEnd is how a run ended
type runEnd struct {
	status types.TaskStatus
	msg    string
	// err is reported to synchronous callers
	err error
}

// run executes the indexing sequence for task, which must come from
// beginRun. The run token is released on return.
func (e *Engine) run(ctx context.Context, task *types.IndexingTask) error {
	defer e.flags.EndRun()
	logger := e.logger.With("task_id", task.ID)
	logger.Info("indexing run started", "paths", task.Paths)
	e.emit(types.ProgressEvent{Kind: types.ProgressStart, TaskID: task.ID, Message: "Start"})

	stopFlush := e.startFlusher(ctx, task)
	end := e.runPhases(ctx, task)
	stopFlush()

	e.finish(task, end.status, end.msg)
	logger.Info("indexing run finished", "status", end.status, "message", end.msg)
	return end.err
}

// runPhases scans, then indexes documents, images and audio
func (e *Engine) runPhases(ctx context.Context, task *types.IndexingTask) runEnd {
	summary := e.indexer.Summary()

	e.emit(types.ProgressEvent{Kind: types.ProgressScan, TaskID: task.ID, Message: "Scanning"})
	res, err := e.scanner.Scan(ctx, task.Paths)
	summary.SetScanned(res.Total)
	if end, stopped := e.stopped(ctx, task); stopped {
		return end
	}
	if err != nil {
		return runEnd{status: types.TaskFailed, msg: err.Error(), err: err}
	}
	e.flush(task)

	e.flags.SetIndexing(true)
	emit := func(ev types.ProgressEvent) { e.emit(ev) }

	docs := e.indexer.NewTemplate(types.CategoryDocument, indexer.DocumentSource{Registry: e.registry}, emit)
	if end, done := e.phase(ctx, task, docs); done {
		return end
	}

	st := e.settings.Get()
	if st.Indexer.IsPrivate {
		return runEnd{status: types.TaskCompleted, msg: MsgPrivacySkip}
	}
	analyzers, err := e.newAnalyzers(st.Platform)
	if err != nil {
		status := types.TaskFailed
		if errors.Is(err, types.ErrPlatformMissingAPIKey) {
			// Documents are indexed; only media is left out
			status = types.TaskCompleted
		}
		return runEnd{status: status, msg: err.Error(), err: err}
	}

	if analyzers.SupportsImage() {
		images := e.indexer.NewTemplate(types.CategoryImage, indexer.ImageSource{Analyzer: analyzers.Image, Model: analyzers.VisionModel}, emit)
		if end, done := e.phase(ctx, task, images); done {
			return end
		}
	}
	if analyzers.SupportsAudio() {
		audio := e.indexer.NewTemplate(types.CategoryAudio, indexer.AudioSource{Analyzer: analyzers.Audio, Model: analyzers.AudioModel}, emit)
		if end, done := e.phase(ctx, task, audio); done {
			return end
		}
	}
	return runEnd{status: types.TaskCompleted, msg: MsgDone}
}

// phase runs one category template. done is true when the run must end.
func (e *Engine) phase(ctx context.Context, task *types.IndexingTask, t *indexer.Template) (runEnd, bool) {
	err := t.Process(ctx, task.ID)
	e.flush(task)
	if end, stopped := e.stopped(ctx, task); stopped {
		return end, true
	}
	if err != nil {
		e.logger.Error("indexing phase failed", "category", t.Category().String(), "error", err)
		return runEnd{status: types.TaskFailed, msg: err.Error(), err: err}, true
	}
	return runEnd{}, false
}

// stopped reports whether the run was asked to stop, emitting the Stop event
func (e *Engine) stopped(ctx context.Context, task *types.IndexingTask) (runEnd, bool) {
	if !e.flags.StopRequested() && ctx.Err() == nil {
		return runEnd{}, false
	}
	e.emit(types.ProgressEvent{Kind: types.ProgressStop, TaskID: task.ID, Message: MsgStopped})
	return runEnd{status: types.TaskCancelled, msg: MsgStopped}, true
}

// flush writes the live counters into the task row
func (e *Engine) flush(task *types.IndexingTask) {
	e.taskMu.Lock()
	e.indexer.Summary().Apply(task)
	task.Duration = time.Since(task.StartTime)
	snapshot := cloneTask(task)
	e.taskMu.Unlock()

	if err := e.store.UpdateTask(context.WithoutCancel(e.ctx), snapshot); err != nil {
		e.logger.Warn("failed to update task", "task_id", task.ID, "error", err)
	}
}

// startFlusher flushes task counters every flush interval until the returned
// function is called
func (e *Engine) startFlusher(ctx context.Context, task *types.IndexingTask) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.flush(task)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// finish finalizes the task and announces the end of the run
func (e *Engine) finish(task *types.IndexingTask, status types.TaskStatus, msg string) {
	e.taskMu.Lock()
	task.Status = status
	task.Remark = msg
	task.EndTime = time.Now()
	e.taskMu.Unlock()
	e.flush(task)

	e.flags.ClearStop()
	e.searcher.InvalidateCache()
	if err := e.paths.Refresh(context.WithoutCancel(e.ctx)); err != nil {
		e.logger.Warn("failed to refresh path cache", "error", err)
	}
	e.emit(types.ProgressEvent{Kind: types.ProgressFinish, TaskID: task.ID, Message: msg})
}

// BackgroundIndex scans path and indexes whatever is waiting, without
// progress events or a task row. Used for roots discovered by the watcher.
func (e *Engine) BackgroundIndex(ctx context.Context, path string) error {
	if path == "" {
		return types.ErrEmptyPaths
	}
	if e.flags.Scanning() || !e.flags.TryBeginRun() {
		return types.ErrIndexingInProgress
	}
	defer e.flags.EndRun()
	defer e.flags.ClearStop()
	defer e.searcher.InvalidateCache()

	logger := e.logger.With("path", path)
	logger.Info("background indexing started")

	if _, err := e.scanner.Scan(ctx, []string{filepath.Clean(path)}); err != nil {
		return err
	}
	e.flags.SetIndexing(true)

	docs := e.indexer.NewTemplate(types.CategoryDocument, indexer.DocumentSource{Registry: e.registry}, nil)
	if err := docs.Process(ctx, 0); err != nil {
		return err
	}

	st := e.settings.Get()
	if st.Indexer.IsPrivate {
		logger.Info("background indexing finished", "message", MsgPrivacySkip)
		return nil
	}
	analyzers, err := e.newAnalyzers(st.Platform)
	if err != nil {
		return err
	}
	if err := e.processMedia(ctx, analyzers); err != nil {
		return err
	}
	logger.Info("background indexing finished")
	return nil
}

func (e *Engine) processMedia(ctx context.Context, a *extractor.Analyzers) error {
	if a.SupportsImage() {
		t := e.indexer.NewTemplate(types.CategoryImage, indexer.ImageSource{Analyzer: a.Image, Model: a.VisionModel}, nil)
		if err := t.Process(ctx, 0); err != nil {
			return err
		}
	}
	if a.SupportsAudio() {
		t := e.indexer.NewTemplate(types.CategoryAudio, indexer.AudioSource{Analyzer: a.Audio, Model: a.AudioModel}, nil)
		if err := t.Process(ctx, 0); err != nil {
			return err
		}
	}
	return nil
}
