package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

const (
	// DefaultMaxDistance is the largest cosine distance treated as a match
	DefaultMaxDistance = 0.7
	// DefaultSemanticLimit is the number of neighbors taken from each table
	DefaultSemanticLimit = 10
)

// SemanticEngine finds files whose content or metadata embeddings are close
// to the query embedding
type SemanticEngine struct {
	store       storage.Storage
	embedder    embedder.Embedder
	maxDistance float64
	limit       int
	logger      *slog.Logger
}

// SemanticConfig contains configuration for the semantic engine
type SemanticConfig struct {
	Store storage.Storage
	// Embedder embeds queries. Wrap it in embedder.CachedEmbedder to avoid
	// re-embedding repeated queries.
	Embedder    embedder.Embedder
	MaxDistance float64 // default: DefaultMaxDistance
	Limit       int     // default: DefaultSemanticLimit
	Logger      *slog.Logger
}

// NewSemanticEngine creates a semantic engine
func NewSemanticEngine(cfg SemanticConfig) *SemanticEngine {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultSemanticLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("searcher", "semantic")
	}
	return &SemanticEngine{
		store:       cfg.Store,
		embedder:    cfg.Embedder,
		maxDistance: cfg.MaxDistance,
		limit:       cfg.Limit,
		logger:      cfg.Logger,
	}
}

// fileMatch accumulates the vector hits of one file
type fileMatch struct {
	fileID   int64
	distance float64
	chunkIDs []int64
}

// Search returns files ordered by their closest embedding, closest first
func (s *SemanticEngine) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var contentHits, metaHits []storage.VectorHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contentHits, err = s.store.SearchContent(gctx, vector, s.maxDistance, s.limit)
		return err
	})
	g.Go(func() error {
		var err error
		metaHits, err = s.store.SearchMetadata(gctx, vector, s.maxDistance, s.limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := mergeHits(contentHits, metaHits)
	if len(matches) == 0 {
		return nil, nil
	}
	return s.resolve(ctx, matches)
}

// mergeHits groups hits by file keeping the smallest distance. Only content
// hits contribute chunk ids.
func mergeHits(content, meta []storage.VectorHit) []*fileMatch {
	byFile := make(map[int64]*fileMatch)
	var order []*fileMatch
	add := func(h storage.VectorHit, chunk bool) {
		m, ok := byFile[h.FileID]
		if !ok {
			m = &fileMatch{fileID: h.FileID, distance: h.Distance}
			byFile[h.FileID] = m
			order = append(order, m)
		}
		if chunk {
			m.chunkIDs = append(m.chunkIDs, h.ID)
		}
		if h.Distance < m.distance {
			m.distance = h.Distance
		}
	}
	for _, h := range content {
		add(h, true)
	}
	for _, h := range meta {
		add(h, false)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].distance < order[j].distance })
	return order
}

func (s *SemanticEngine) resolve(ctx context.Context, matches []*fileMatch) ([]types.SearchResult, error) {
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.fileID
	}
	records, err := s.store.ListFilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.FileRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		rec, ok := byID[m.fileID]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			Score:           1 - m.distance,
			Source:          types.SourceSemantic,
			File:            *rec,
			Distance:        m.distance,
			MatchedChunkIDs: m.chunkIDs,
		})
	}
	return results, nil
}
