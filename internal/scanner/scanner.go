package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/runstate"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

const (
	// DefaultQueueSize bounds the pending-directory channel
	DefaultQueueSize = 5000

	enqueueRetries    = 3
	enqueueRetryDelay = 100 * time.Millisecond
)

// ErrIgnored is returned by ScanFile for paths the ignore rules exclude
var ErrIgnored = errors.New("path is ignored")

// Config contains configuration for the scanner
type Config struct {
	Store storage.Storage
	Flags *runstate.Flags
	// Settings supplies the ignore rules, re-read at the start of every scan.
	// Nil uses the defaults.
	Settings    *config.SettingsStore
	Workers     int // directory workers (default: runtime.NumCPU())
	HashWorkers int // hashing pool size (default: runtime.NumCPU())
	QueueSize   int // default: DefaultQueueSize
	Logger      *slog.Logger
}

// Result summarizes a scan
type Result struct {
	Total     int64 // candidate files seen
	Inserted  int64
	Updated   int64
	Unchanged int64
	Failed    int64
	// Skipped is set when the scan was rejected because another was running
	Skipped bool
}

type counters struct {
	total, inserted, updated, unchanged, failed atomic.Int64
}

func (c *counters) result() Result {
	return Result{
		Total:     c.total.Load(),
		Inserted:  c.inserted.Load(),
		Updated:   c.updated.Load(),
		Unchanged: c.unchanged.Load(),
		Failed:    c.failed.Load(),
	}
}

// Scanner walks directory trees and reconciles every candidate file with the
// registry
type Scanner struct {
	store    storage.Storage
	flags    *runstate.Flags
	settings *config.SettingsStore
	workers  int
	queueCap int
	pool     *ants.Pool
	logger   *slog.Logger

	// resolveMu serializes registry resolution
	resolveMu sync.Mutex
}

// New creates a scanner. Close releases its hashing pool.
func New(cfg Config) (*Scanner, error) {
	if cfg.Store == nil {
		return nil, errors.New("scanner requires a store")
	}
	if cfg.Flags == nil {
		cfg.Flags = &runstate.Flags{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("scanner", "scanner")
	}

	pool, err := ants.NewPool(cfg.HashWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create hashing pool: %w", err)
	}
	return &Scanner{
		store:    cfg.Store,
		flags:    cfg.Flags,
		settings: cfg.Settings,
		workers:  cfg.Workers,
		queueCap: cfg.QueueSize,
		pool:     pool,
		logger:   cfg.Logger,
	}, nil
}

// Close releases the hashing pool
func (s *Scanner) Close() {
	s.pool.Release()
}

func (s *Scanner) rules() *Rules {
	if s.settings == nil {
		return NewRules(config.DefaultSettings().Indexer)
	}
	return NewRules(s.settings.Get().Indexer)
}

// scan is the state of one Scan call
type scan struct {
	queue   chan string
	pending atomic.Int64
	done    chan struct{}
	once    sync.Once
	rules   *Rules
	counts  counters
}

func (sc *scan) finishDir() {
	if sc.pending.Add(-1) == 0 {
		sc.once.Do(func() { close(sc.done) })
	}
}

// Scan walks roots and resolves every candidate file. A scan already in
// flight makes this a no-op reported through Result.Skipped.
func (s *Scanner) Scan(ctx context.Context, roots []string) (Result, error) {
	if len(roots) == 0 {
		return Result{}, types.ErrEmptyPaths
	}
	if !s.flags.TryBeginScan() {
		s.logger.Info("scan already in progress, skipping")
		return Result{Skipped: true}, nil
	}
	defer s.flags.EndScan()

	start := time.Now()
	sc := &scan{
		queue: make(chan string, s.queueCap),
		done:  make(chan struct{}),
		rules: s.rules(),
	}

	// Hold one pending slot while seeding so workers cannot finish early
	sc.pending.Add(1)
	var rootFiles []string
	for _, root := range roots {
		root = filepath.Clean(root)
		fi, err := os.Stat(root)
		if err != nil {
			s.logger.Warn("skipping scan root", "path", root, "error", err)
			continue
		}
		if fi.IsDir() {
			if !sc.rules.SkipDir(root) {
				s.enqueue(sc, root)
			}
			continue
		}
		if !sc.rules.SkipFile(root) {
			rootFiles = append(rootFiles, root)
		}
	}
	s.processFiles(ctx, sc, rootFiles)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-sc.done:
					return nil
				case dir := <-sc.queue:
					s.scanDir(gctx, sc, dir)
					sc.finishDir()
				}
			}
		})
	}
	sc.finishDir()

	err := g.Wait()
	res := sc.counts.result()
	s.logger.Info("scan finished",
		"roots", len(roots),
		"total", res.Total,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"failed", res.Failed,
		"duration", time.Since(start))
	return res, err
}

// enqueue hands dir to the workers, retrying a full queue before dropping the
// subtree
func (s *Scanner) enqueue(sc *scan, dir string) bool {
	sc.pending.Add(1)
	for attempt := 0; ; attempt++ {
		select {
		case sc.queue <- dir:
			return true
		default:
		}
		if attempt == enqueueRetries {
			break
		}
		time.Sleep(enqueueRetryDelay)
	}
	sc.pending.Add(-1)
	s.logger.Error("scan queue full, dropping directory", "path", dir)
	return false
}

func (s *Scanner) scanDir(ctx context.Context, sc *scan, dir string) {
	if s.flags.StopRequested() || ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("failed to read directory", "path", dir, "error", err)
		return
	}

	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if !sc.rules.SkipDir(path) {
				s.enqueue(sc, path)
			}
			continue
		}
		if !e.Type().IsRegular() || sc.rules.SkipFile(path) {
			continue
		}
		files = append(files, path)
	}
	s.processFiles(ctx, sc, files)
}

// processFiles hashes files on the pool and waits for all of them
func (s *Scanner) processFiles(ctx context.Context, sc *scan, files []string) {
	var wg sync.WaitGroup
	for _, path := range files {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			s.processFile(ctx, sc, path)
		})
		if err != nil {
			s.processFile(ctx, sc, path)
			wg.Done()
		}
	}
	wg.Wait()
}

func (s *Scanner) processFile(ctx context.Context, sc *scan, path string) {
	if s.flags.StopRequested() || ctx.Err() != nil {
		return
	}
	sc.counts.total.Add(1)

	info, err := Inspect(path)
	if err != nil {
		sc.counts.failed.Add(1)
		s.logger.Warn("failed to inspect file", "path", path, "error", err)
		return
	}

	_, outcome, err := s.resolve(ctx, info)
	if err != nil {
		sc.counts.failed.Add(1)
		s.logger.Warn("failed to resolve file", "path", path, "error", err)
		return
	}
	switch outcome {
	case OutcomeInserted:
		sc.counts.inserted.Add(1)
	case OutcomeUpdated:
		sc.counts.updated.Add(1)
	default:
		sc.counts.unchanged.Add(1)
	}
}

func (s *Scanner) resolve(ctx context.Context, info *FileInfo) (*types.FileRecord, Outcome, error) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()
	return Resolve(ctx, s.store, info)
}

// ScanFile validates and resolves a single file outside of a full scan
func (s *Scanner) ScanFile(ctx context.Context, path string) (*types.FileRecord, Outcome, error) {
	path = filepath.Clean(path)
	if rules := s.rules(); rules.SkipFile(path) || rules.InIgnoredDir(path) {
		return nil, OutcomeUnchanged, fmt.Errorf("%w: %s", ErrIgnored, path)
	}
	info, err := Inspect(path)
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	return s.resolve(ctx, info)
}
