package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/filesift/internal/chunker"
	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/extractor"
	"github.com/dshills/filesift/internal/fswatch"
	"github.com/dshills/filesift/internal/indexer"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/runstate"
	"github.com/dshills/filesift/internal/scanner"
	"github.com/dshills/filesift/internal/searcher"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

const (
	// DefaultFlushInterval is how often run counters are written to the task
	DefaultFlushInterval = 5 * time.Second
	// QueryCacheSize bounds the cache of query embeddings
	QueryCacheSize = 1000
)

// EmbeddingService is the embedding session lifecycle the engine drives.
// *embedder.Manager implements it.
type EmbeddingService interface {
	embedder.Embedder
	Warmup(ctx context.Context) error
	Clear()
	SetLanguage(language string)
	StartSweeper(ctx context.Context, interval time.Duration)
}

// AnalyzerFactory builds the media analyzers for a platform setting
type AnalyzerFactory func(config.PlatformSetting) (*extractor.Analyzers, error)

// Config contains configuration for the engine
type Config struct {
	Store     storage.Storage
	Settings  *config.SettingsStore
	Embedding EmbeddingService
	// Counter sizes chunks in tokens
	Counter      chunker.TokenCounter
	Registry     *extractor.Registry // default: extractor.DefaultRegistry()
	NewAnalyzers AnalyzerFactory     // default: extractor.NewAnalyzers

	// Watch starts the filesystem watcher with Start
	Watch          bool
	DebounceWindow time.Duration // default: fswatch.DefaultDebounceWindow

	FlushInterval   time.Duration // default: DefaultFlushInterval
	SweepInterval   time.Duration // default: embedder.DefaultSweepInterval
	RefreshInterval time.Duration // default: searcher.DefaultRefreshInterval
	Logger          *slog.Logger
}

// Engine is the application state: it owns the run flags, the pipeline
// components and the live path cache, and exposes run control, search and
// filesystem dispatch.
type Engine struct {
	store        storage.Storage
	settings     *config.SettingsStore
	embedding    EmbeddingService
	query        *embedder.CachedEmbedder
	flags        *runstate.Flags
	scanner      *scanner.Scanner
	indexer      *indexer.Indexer
	registry     *extractor.Registry
	newAnalyzers AnalyzerFactory
	paths        *searcher.PathEngine
	searcher     *searcher.Searcher
	watcher      *fswatch.Watcher
	events       *Events
	logger       *slog.Logger

	watch           bool
	flushInterval   time.Duration
	sweepInterval   time.Duration
	refreshInterval time.Duration

	// ctx outlives individual requests; background runs use it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	taskMu sync.Mutex
	task   *types.IndexingTask
}

// New wires the engine components. Nothing runs until Start.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	if cfg.Embedding == nil {
		return nil, errors.New("engine requires an embedding service")
	}
	if cfg.Counter == nil {
		return nil, errors.New("engine requires a token counter")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.NewMemorySettings(config.DefaultSettings())
	}
	if cfg.Registry == nil {
		cfg.Registry = extractor.DefaultRegistry()
	}
	if cfg.NewAnalyzers == nil {
		cfg.NewAnalyzers = extractor.NewAnalyzers
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("engine", "engine")
	}

	flags := &runstate.Flags{}
	sc, err := scanner.New(scanner.Config{
		Store:    cfg.Store,
		Flags:    flags,
		Settings: cfg.Settings,
		Logger:   cfg.Logger.With("component", "scanner"),
	})
	if err != nil {
		return nil, err
	}
	ix, err := indexer.New(indexer.Config{
		Store:    cfg.Store,
		Embedder: cfg.Embedding,
		Counter:  cfg.Counter,
		Flags:    flags,
		Logger:   cfg.Logger.With("component", "indexer"),
	})
	if err != nil {
		sc.Close()
		return nil, err
	}

	query := embedder.NewCachedEmbedder(cfg.Embedding, QueryCacheSize)
	paths := searcher.NewPathEngine(cfg.Store, cfg.Logger.With("component", "paths"))
	semantic := searcher.NewSemanticEngine(searcher.SemanticConfig{
		Store:    cfg.Store,
		Embedder: query,
		Logger:   cfg.Logger.With("component", "semantic"),
	})

	e := &Engine{
		store:           cfg.Store,
		settings:        cfg.Settings,
		embedding:       cfg.Embedding,
		query:           query,
		flags:           flags,
		scanner:         sc,
		indexer:         ix,
		registry:        cfg.Registry,
		newAnalyzers:    cfg.NewAnalyzers,
		paths:           paths,
		searcher:        searcher.NewSearcher(cfg.Store, paths, semantic, cfg.Logger.With("component", "searcher")),
		events:          NewEvents(),
		logger:          cfg.Logger,
		watch:           cfg.Watch,
		flushInterval:   cfg.FlushInterval,
		sweepInterval:   cfg.SweepInterval,
		refreshInterval: cfg.RefreshInterval,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.watcher, err = fswatch.New(fswatch.Config{
		Dispatcher:     e,
		Cache:          paths,
		Settings:       cfg.Settings,
		DebounceWindow: cfg.DebounceWindow,
		Logger:         cfg.Logger.With("component", "watcher"),
	})
	if err != nil {
		sc.Close()
		return nil, err
	}
	return e, nil
}

// Start loads the path cache and starts the background loops: path refresh,
// embedding eviction, embedding warmup and, when configured, the watcher.
// They stop when ctx is done or on Close.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if n, err := e.store.ResetIndexingStatus(e.ctx); err != nil {
		return fmt.Errorf("failed to reset interrupted records: %w", err)
	} else if n > 0 {
		e.logger.Info("requeued records left by an interrupted run", "records", n)
	}
	if err := e.paths.Build(e.ctx); err != nil {
		return fmt.Errorf("failed to build path cache: %w", err)
	}
	e.paths.StartRefresher(e.ctx, e.refreshInterval)
	e.embedding.StartSweeper(e.ctx, e.sweepInterval)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.embedding.Warmup(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Warn("embedding warmup failed", "error", err)
		}
	}()

	if e.watch {
		e.watcher.Start(e.ctx)
	}
	e.logger.Info("engine started", "paths", e.paths.Len(), "watch", e.watch)
	return nil
}

// Close stops background work, waits for runs in flight and releases the
// component pools. The store is left open.
func (e *Engine) Close() error {
	e.flags.RequestStop()
	e.cancel()
	err := e.watcher.Close()
	e.wg.Wait()
	e.scanner.Close()
	return err
}

// Events returns the progress event hub
func (e *Engine) Events() *Events {
	return e.events
}

// Settings returns the settings store
func (e *Engine) Settings() *config.SettingsStore {
	return e.settings
}

// Search answers a query through the search coordinator
func (e *Engine) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	return e.searcher.Search(ctx, req)
}

func (e *Engine) emit(ev types.ProgressEvent) {
	e.events.Publish(ev)
}
