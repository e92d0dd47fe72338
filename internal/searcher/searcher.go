package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeAuto     SearchMode = "auto"     // Route by detected intent
	SearchModePath     SearchMode = "path"     // Path keywords only
	SearchModeSemantic SearchMode = "semantic" // Embedding similarity only
	SearchModeHybrid   SearchMode = "hybrid"   // Both, fused by path
)

// Fusion weights for files found by both engines. Files found only by
// semantic search keep semanticWeight of their score.
const (
	pathWeight     = 0.6
	semanticWeight = 0.4
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// ParseSearchMode maps a user-supplied mode name, defaulting to auto
func ParseSearchMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SearchModeAuto, nil
	case SearchModeAuto, SearchModePath, SearchModeSemantic, SearchModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported search mode: %s", s)
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Mode     SearchMode
	Limit    int           // 0 returns every fused result
	UseCache bool          // Whether to use the response cache
	CacheTTL time.Duration // default: 10s
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results         []types.SearchResult
	TotalResults    int
	Mode            SearchMode
	Intent          types.QueryIntent
	Duration        time.Duration
	CacheHit        bool
	PathResults     int
	SemanticResults int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher routes queries to the path and semantic engines and fuses their
// results
type Searcher struct {
	store    storage.Storage
	paths    *PathEngine
	semantic *SemanticEngine
	logger   *slog.Logger
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, paths *PathEngine, semantic *SemanticEngine, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = logging.NewModuleLogger("searcher", "searcher")
	}
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		store:    store,
		paths:    paths,
		semantic: semantic,
		logger:   logger,
		cache:    cache,
	}
}

// Paths returns the path engine
func (s *Searcher) Paths() *PathEngine {
	return s.paths
}

// Search answers a query. Engine failures are logged and yield fewer or no
// results; only an invalid request returns an error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	intent := DetectIntent(req.Query)
	switch req.Mode {
	case SearchModePath:
		intent = types.IntentPathOnly
	case SearchModeSemantic:
		intent = types.IntentSemanticOnly
	case SearchModeHybrid:
		intent = types.IntentHybrid
	}

	var pathResults, semanticResults []types.SearchResult
	switch intent {
	case types.IntentPathOnly:
		pathResults = s.pathSearch(ctx, req.Query)
	case types.IntentSemanticOnly:
		semanticResults = s.semanticSearch(ctx, req.Query)
	default:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			pathResults = s.pathSearch(gctx, req.Query)
			return nil
		})
		g.Go(func() error {
			semanticResults = s.semanticSearch(gctx, req.Query)
			return nil
		})
		_ = g.Wait()
	}

	var results []types.SearchResult
	switch intent {
	case types.IntentPathOnly:
		results = pathResults
	case types.IntentSemanticOnly:
		results = semanticResults
	default:
		results = Fuse(pathResults, semanticResults)
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}

	response := &SearchResponse{
		Results:         results,
		TotalResults:    len(results),
		Mode:            req.Mode,
		Intent:          intent,
		Duration:        time.Since(startTime),
		PathResults:     len(pathResults),
		SemanticResults: len(semanticResults),
	}
	s.logger.Debug("search finished",
		"intent", intent.String(),
		"results", len(results),
		"duration", response.Duration)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

// pathSearch runs the path engine and resolves its hits to file records
func (s *Searcher) pathSearch(ctx context.Context, query string) []types.SearchResult {
	if s.paths == nil {
		return nil
	}
	hits := s.paths.Search(ctx, query)
	if len(hits) == 0 {
		return nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Entry.ID
	}
	records, err := s.store.ListFilesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve path hits", "error", err)
		return nil
	}
	byID := make(map[int64]*types.FileRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.Entry.ID]
		if !ok {
			// Deleted since the cache last saw it
			continue
		}
		results = append(results, types.SearchResult{
			Score:           h.Score,
			Source:          types.SourcePath,
			File:            *rec,
			MatchedKeywords: h.Keywords,
		})
	}
	return results
}

func (s *Searcher) semanticSearch(ctx context.Context, query string) []types.SearchResult {
	if s.semantic == nil {
		return nil
	}
	results, err := s.semantic.Search(ctx, query)
	if err != nil {
		s.logger.Warn("semantic search failed", "error", err)
		return nil
	}
	return results
}

// Fuse merges path and semantic results by file path. A file found by both
// scores pathWeight*path + semanticWeight*semantic; a file found only by
// semantic search keeps semanticWeight of its score; path-only files keep
// theirs. Results are ordered by score, ties by path.
func Fuse(pathResults, semanticResults []types.SearchResult) []types.SearchResult {
	byPath := make(map[string]int, len(pathResults)+len(semanticResults))
	fused := make([]types.SearchResult, 0, len(pathResults)+len(semanticResults))

	for _, r := range pathResults {
		if _, ok := byPath[r.File.Path]; ok {
			continue
		}
		byPath[r.File.Path] = len(fused)
		fused = append(fused, r)
	}
	for _, r := range semanticResults {
		i, ok := byPath[r.File.Path]
		if !ok {
			r.Score *= semanticWeight
			byPath[r.File.Path] = len(fused)
			fused = append(fused, r)
			continue
		}
		e := &fused[i]
		e.Score = e.Score*pathWeight + r.Score*semanticWeight
		e.Source = types.SourceHybrid
		e.Distance = r.Distance
		e.MatchedChunkIDs = append(e.MatchedChunkIDs, r.MatchedChunkIDs...)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].File.Path < fused[j].File.Path
	})
	return fused
}

// validateRequest ensures search request is valid
func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Mode == "" {
		req.Mode = SearchModeAuto
	}
	if _, err := ParseSearchMode(string(req.Mode)); err != nil {
		return err
	}
	if req.Limit < 0 {
		req.Limit = 0
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = 10 * time.Second
	}
	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Called whenever the index
// changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		r.MatchedKeywords = append([]string(nil), r.MatchedKeywords...)
		r.MatchedChunkIDs = append([]int64(nil), r.MatchedChunkIDs...)
		dst.Results[i] = r
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	return sha256.Sum256([]byte(data.String()))
}
