package indexer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dshills/filesift/internal/chunker"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/extractor"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/runstate"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// ContentSource produces the text of a record for embedding
type ContentSource interface {
	Load(ctx context.Context, rec *types.FileRecord) (string, error)
}

// DocumentSource reads documents through the extractor registry
type DocumentSource struct {
	Registry *extractor.Registry
	MaxChars int // default: extractor.MaxDocumentChars
}

// Load implements ContentSource
func (d DocumentSource) Load(_ context.Context, rec *types.FileRecord) (string, error) {
	maxChars := d.MaxChars
	if maxChars <= 0 {
		maxChars = extractor.MaxDocumentChars
	}
	return d.Registry.LoadBounded(rec.Path, maxChars)
}

// ImageSource describes images with a vision model
type ImageSource struct {
	Analyzer extractor.ImageAnalyzer
	Model    string
}

// Load implements ContentSource
func (s ImageSource) Load(ctx context.Context, rec *types.FileRecord) (string, error) {
	return s.Analyzer.AnalyzeImage(ctx, s.Model, rec.Path)
}

// AudioSource transcribes audio files
type AudioSource struct {
	Analyzer extractor.AudioAnalyzer
	Model    string
}

// Load implements ContentSource
func (s AudioSource) Load(ctx context.Context, rec *types.FileRecord) (string, error) {
	return s.Analyzer.AnalyzeAudio(ctx, s.Model, rec.Path)
}

// Indexer builds per-category templates sharing one store, embedder, splitter
// and summary
type Indexer struct {
	store    storage.Storage
	embedder embedder.Embedder
	splitter *chunker.Splitter
	flags    *runstate.Flags
	summary  *Summary
	pageSize int
	logger   *slog.Logger
}

// Config contains configuration for the indexer
type Config struct {
	Store    storage.Storage
	Embedder embedder.Embedder
	// Splitter defaults to chunker.DefaultMaxTokens with chunker.DefaultOverlap
	// counted by Counter
	Splitter *chunker.Splitter
	Counter  chunker.TokenCounter
	Flags    *runstate.Flags
	Summary  *Summary
	PageSize int // default: DefaultPageSize
	Logger   *slog.Logger
}

// New creates a new Indexer instance
func New(cfg Config) (*Indexer, error) {
	if cfg.Store == nil || cfg.Embedder == nil {
		return nil, errors.New("indexer requires a store and an embedder")
	}
	if cfg.Splitter == nil {
		if cfg.Counter == nil {
			return nil, errors.New("indexer requires a splitter or a token counter")
		}
		cfg.Splitter = chunker.NewSplitter(cfg.Counter, chunker.DefaultMaxTokens, chunker.DefaultOverlap)
	}
	if cfg.Flags == nil {
		cfg.Flags = &runstate.Flags{}
	}
	if cfg.Summary == nil {
		cfg.Summary = &Summary{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("indexer", "indexer")
	}
	return &Indexer{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		splitter: cfg.Splitter,
		flags:    cfg.Flags,
		summary:  cfg.Summary,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger,
	}, nil
}

// Summary returns the shared run summary
func (ix *Indexer) Summary() *Summary {
	return ix.summary
}

// NewTemplate returns the indexing loop for category reading content from
// source. emit may be nil.
func (ix *Indexer) NewTemplate(category types.FileCategory, source ContentSource, emit func(types.ProgressEvent)) *Template {
	progress := ix.summary.For(category)
	if progress == nil {
		progress = &EmbeddingProgress{}
	}
	return &Template{
		category: category,
		source:   source,
		store:    ix.store,
		embedder: ix.embedder,
		splitter: ix.splitter,
		flags:    ix.flags,
		progress: progress,
		emit:     emit,
		pageSize: ix.pageSize,
		logger:   ix.logger.With("category", category.String()),
	}
}
