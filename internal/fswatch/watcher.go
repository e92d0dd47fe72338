package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/scanner"
)

const (
	// DefaultQueueSize bounds the raw event channel
	DefaultQueueSize = 5000

	pushRetries    = 3
	pushRetryDelay = 100 * time.Millisecond
)

// Dispatcher applies drained events to the index
type Dispatcher interface {
	IndexFile(ctx context.Context, path string) error
	BackgroundIndex(ctx context.Context, path string) error
	RemoveFileIndex(ctx context.Context, path string) error
	RemoveDirectoryIndex(ctx context.Context, dir string) error
	// RenameFile moves the record at from in place. It reports false when no
	// record exists at from.
	RenameFile(ctx context.Context, from, to string) (bool, error)
	// RenameDirectory rewrites the prefix of every record under from and
	// returns how many moved
	RenameDirectory(ctx context.Context, from, to string) (int64, error)
}

// PathCache is the in-memory path list that must forget removed paths
// immediately
type PathCache interface {
	Remove(path string, isDir bool)
}

// Config contains configuration for the watcher
type Config struct {
	Dispatcher Dispatcher
	Cache      PathCache // optional
	// Settings persists the watched roots and supplies the ignore rules used
	// when subscribing directory trees. Nil keeps roots in memory only.
	Settings        *config.SettingsStore
	RenameWindow    time.Duration // default: DefaultRenameWindow
	DebounceWindow  time.Duration // default: DefaultDebounceWindow
	QueueSize       int           // default: DefaultQueueSize
	DispatchWorkers int           // default: runtime.NumCPU()
	Logger          *slog.Logger
}

// Watcher turns filesystem notifications under the watched roots into index
// updates
type Watcher struct {
	fs         *fsnotify.Watcher
	dispatcher Dispatcher
	cache      PathCache
	settings   *config.SettingsStore
	normalizer *Normalizer
	debouncer  *Debouncer
	debounce   time.Duration
	queue      chan fsnotify.Event
	pool       *ants.Pool
	logger     *slog.Logger

	mu    sync.Mutex
	dirs  map[string]struct{}
	files map[string]struct{}

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a watcher. Nothing is observed until Start.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("watcher requires a dispatcher")
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("fswatch", "watcher")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	pool, err := ants.NewPool(cfg.DispatchWorkers)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	return &Watcher{
		fs:         fsw,
		dispatcher: cfg.Dispatcher,
		cache:      cfg.Cache,
		settings:   cfg.Settings,
		normalizer: NewNormalizer(cfg.RenameWindow),
		debouncer:  NewDebouncer(),
		debounce:   cfg.DebounceWindow,
		queue:      make(chan fsnotify.Event, cfg.QueueSize),
		pool:       pool,
		logger:     cfg.Logger,
		dirs:       make(map[string]struct{}),
		files:      make(map[string]struct{}),
	}, nil
}

// Start subscribes the roots stored in settings and begins processing events
// until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		if w.settings != nil {
			st := w.settings.Get()
			for _, d := range st.Watcher.Directories {
				if subErr := w.subscribe(d, true); subErr != nil {
					w.logger.Warn("failed to watch directory", "path", d, "error", subErr)
				}
			}
			for _, f := range st.Watcher.Files {
				if subErr := w.subscribe(f, false); subErr != nil {
					w.logger.Warn("failed to watch file", "path", f, "error", subErr)
				}
			}
		}

		w.wg.Add(2)
		go w.readLoop(ctx)
		go w.debounceLoop(ctx)
		w.mu.Lock()
		dirs, files := len(w.dirs), len(w.files)
		w.mu.Unlock()
		w.logger.Info("file watcher started", "directories", dirs, "files", files)
	})
}

// Close stops the watcher, dispatching whatever is still pending
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
		w.wg.Wait()
		w.pool.Release()
		w.logger.Info("file watcher stopped")
	})
	return err
}

// AddPath persists path as a watched root and subscribes to it
func (w *Watcher) AddPath(path string) error {
	path = filepath.Clean(path)
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if w.settings != nil {
		if _, err := w.settings.AddWatched(path, fi.IsDir()); err != nil {
			return err
		}
	}
	return w.subscribe(path, fi.IsDir())
}

// RemovePath forgets a watched root and drops watches no other root needs
func (w *Watcher) RemovePath(path string) error {
	path = filepath.Clean(path)
	if w.settings != nil {
		if _, err := w.settings.RemoveWatched(path); err != nil {
			return err
		}
	}

	w.mu.Lock()
	_, wasDir := w.dirs[path]
	_, wasFile := w.files[path]
	delete(w.dirs, path)
	delete(w.files, path)
	w.mu.Unlock()

	switch {
	case wasDir:
		w.unwatchTree(path)
	case wasFile:
		if parent := filepath.Dir(path); !w.covered(parent) {
			_ = w.fs.Remove(parent)
		}
	}
	return nil
}

// Watching reports whether path is inside a watched root
func (w *Watcher) Watching(path string) bool {
	return w.accepts(filepath.Clean(path))
}

func (w *Watcher) subscribe(path string, isDir bool) error {
	path = filepath.Clean(path)
	w.mu.Lock()
	if isDir {
		w.dirs[path] = struct{}{}
	} else {
		w.files[path] = struct{}{}
	}
	w.mu.Unlock()

	if isDir {
		return w.watchTree(path)
	}
	// Files are watched through their directory so renames are seen
	return w.fs.Add(filepath.Dir(path))
}

func (w *Watcher) rules() *scanner.Rules {
	if w.settings == nil {
		return scanner.NewRules(config.DefaultSettings().Indexer)
	}
	return scanner.NewRules(w.settings.Get().Indexer)
}

// watchTree adds a watch for root and every directory below it that a scan
// would descend into
func (w *Watcher) watchTree(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	rules := w.rules()
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && rules.SkipDir(p) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Debug("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) unwatchTree(root string) {
	prefix := root + string(filepath.Separator)
	for _, p := range w.fs.WatchList() {
		if (p == root || strings.HasPrefix(p, prefix)) && !w.covered(p) {
			_ = w.fs.Remove(p)
		}
	}
}

// covered reports whether a remaining root still needs a watch on dir
func (w *Watcher) covered(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root := range w.dirs {
		if underOrEqual(dir, root) {
			return true
		}
	}
	for f := range w.files {
		if filepath.Dir(f) == dir {
			return true
		}
	}
	return false
}

func underOrEqual(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func (w *Watcher) accepts(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		return true
	}
	for root := range w.dirs {
		if underOrEqual(path, root) {
			return true
		}
	}
	return false
}

func (w *Watcher) readLoop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.queue)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.accepts(ev.Name) {
				continue
			}
			w.push(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// push enqueues ev, retrying a full queue before dropping the event
func (w *Watcher) push(ev fsnotify.Event) {
	for attempt := 0; ; attempt++ {
		select {
		case w.queue <- ev:
			return
		default:
		}
		if attempt == pushRetries {
			break
		}
		time.Sleep(pushRetryDelay)
	}
	w.logger.Error("event queue full, dropping event", "path", ev.Name)
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case fev, ok := <-w.queue:
			if !ok {
				// Everything still buffered is final
				for _, ev := range w.normalizer.Flush(time.Now().Add(w.debounce + w.normalizer.window)) {
					w.debouncer.Add(ev)
				}
				if ctx.Err() == nil {
					w.dispatch(ctx, w.debouncer.Drain())
				}
				return
			}
			// Translate here, after every earlier rename "from" reached the
			// normalizer, so the matching create pairs with it
			for _, ev := range w.normalizer.Normalize(Translate(fev, w.normalizer), time.Now()) {
				w.debouncer.Add(ev)
			}
		case now := <-ticker.C:
			for _, ev := range w.normalizer.Flush(now) {
				w.debouncer.Add(ev)
			}
			w.dispatch(ctx, w.debouncer.Drain())
		}
	}
}

// dispatch applies removals and renames in order, then runs indexing work on
// the pool and waits for it
func (w *Watcher) dispatch(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	w.logger.Debug("dispatching events", "count", len(events))

	var jobs []func()
	for _, ev := range events {
		switch ev.Kind {
		case KindRemove:
			w.handleRemove(ctx, ev)
		case KindRename:
			if job := w.handleRename(ctx, ev); job != nil {
				jobs = append(jobs, job)
			}
		case KindCreate, KindModify:
			if job := w.handleUpsert(ctx, ev); job != nil {
				jobs = append(jobs, job)
			}
		}
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		if err := w.pool.Submit(func() { defer wg.Done(); job() }); err != nil {
			job()
			wg.Done()
		}
	}
	wg.Wait()
}

func (w *Watcher) warn(msg string, ev Event, err error) {
	if err != nil {
		w.logger.Warn(msg, "event", ev.String(), "error", err)
	}
}

func (w *Watcher) handleRemove(ctx context.Context, ev Event) {
	if w.cache != nil {
		w.cache.Remove(ev.Path, !ev.IsFile)
	}
	if ev.IsFile {
		w.warn("failed to remove file index", ev, w.dispatcher.RemoveFileIndex(ctx, ev.Path))
		return
	}
	w.unwatchTree(ev.Path)
	w.warn("failed to remove directory index", ev, w.dispatcher.RemoveDirectoryIndex(ctx, ev.Path))
}

func (w *Watcher) handleRename(ctx context.Context, ev Event) func() {
	if w.cache != nil {
		w.cache.Remove(ev.Path, !ev.IsFile)
	}
	if ev.IsFile {
		moved, err := w.dispatcher.RenameFile(ctx, ev.Path, ev.To)
		w.warn("failed to rename file", ev, err)
		if moved || err != nil {
			return nil
		}
		return func() { w.warn("failed to index file", ev, w.dispatcher.IndexFile(ctx, ev.To)) }
	}

	w.unwatchTree(ev.Path)
	if err := w.watchTree(ev.To); err != nil {
		w.warn("failed to watch renamed directory", ev, err)
	}
	moved, err := w.dispatcher.RenameDirectory(ctx, ev.Path, ev.To)
	w.warn("failed to rename directory", ev, err)
	if moved > 0 || err != nil {
		return nil
	}
	return func() { w.warn("failed to index directory", ev, w.dispatcher.BackgroundIndex(ctx, ev.To)) }
}

func (w *Watcher) handleUpsert(ctx context.Context, ev Event) func() {
	if ev.IsFile {
		return func() { w.warn("failed to index file", ev, w.dispatcher.IndexFile(ctx, ev.Path)) }
	}
	if ev.Kind != KindCreate {
		return nil
	}
	if err := w.watchTree(ev.Path); err != nil {
		w.warn("failed to watch new directory", ev, err)
	}
	return func() { w.warn("failed to index directory", ev, w.dispatcher.BackgroundIndex(ctx, ev.Path)) }
}
