package searcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

const (
	// PathResultLimit is the number of path hits returned per query
	PathResultLimit = 20
	// DefaultRefreshInterval is how often new and changed paths are pulled in
	DefaultRefreshInterval = 10 * time.Second

	pathPageSize = 1000
	// Candidates gathered before ranking: one keyword rarely needs more than
	// the result limit, several keywords need room for better-scoring hits.
	singleKeywordPool = PathResultLimit
	multiKeywordPool  = PathResultLimit * 10
)

// PathHit is a path matching one or more query keywords
type PathHit struct {
	Entry    types.PathEntry
	Score    float64
	Keywords []string
	position int
}

// PathEngine keeps every indexed path in memory and matches query keywords
// against them
type PathEngine struct {
	store  storage.Storage
	logger *slog.Logger

	mu        sync.RWMutex
	entries   []types.PathEntry
	byID      map[int64]int
	lastBuild time.Time
}

// NewPathEngine creates an empty path engine. Call Build before searching.
func NewPathEngine(store storage.Storage, logger *slog.Logger) *PathEngine {
	if logger == nil {
		logger = logging.NewModuleLogger("searcher", "paths")
	}
	return &PathEngine{
		store:  store,
		logger: logger,
		byID:   make(map[int64]int),
	}
}

// Build replaces the cache with every path in the store
func (p *PathEngine) Build(ctx context.Context) error {
	started := time.Now()
	var (
		entries []types.PathEntry
		cursor  int64
	)
	for {
		page, err := p.store.ListPaths(ctx, cursor, pathPageSize)
		if err != nil {
			return err
		}
		for _, e := range page {
			if e.Path != "" {
				entries = append(entries, e)
			}
			cursor = max(cursor, e.ID)
		}
		if len(page) < pathPageSize {
			break
		}
	}

	byID := make(map[int64]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}

	p.mu.Lock()
	p.entries = entries
	p.byID = byID
	p.lastBuild = started
	p.mu.Unlock()

	p.logger.Info("path cache built", "paths", len(entries), "duration", time.Since(started))
	return nil
}

// Refresh pulls in records created or changed since the last build or
// refresh. Changed records are updated in place.
func (p *PathEngine) Refresh(ctx context.Context) error {
	p.mu.RLock()
	since := p.lastBuild
	p.mu.RUnlock()

	started := time.Now()
	changed, err := p.store.ListPathsUpdatedSince(ctx, since)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range changed {
		if e.Path == "" {
			continue
		}
		if i, ok := p.byID[e.ID]; ok {
			p.entries[i] = e
			continue
		}
		p.byID[e.ID] = len(p.entries)
		p.entries = append(p.entries, e)
	}
	p.lastBuild = started
	if len(changed) > 0 {
		p.logger.Debug("path cache refreshed", "changed", len(changed))
	}
	return nil
}

// StartRefresher refreshes the cache every interval until ctx is done
func (p *PathEngine) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("path cache refresh failed", "error", err)
				}
			}
		}
	}()
}

// Remove drops path from the cache. For directories every path below it is
// dropped as well.
func (p *PathEngine) Remove(path string, isDir bool) {
	prefix := path + string(filepath.Separator)
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.Path == path || (isDir && strings.HasPrefix(e.Path, prefix)) {
			delete(p.byID, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(p.entries) {
		return
	}
	clear(p.entries[len(kept):])
	p.entries = kept
	for i, e := range p.entries {
		p.byID[e.ID] = i
	}
}

// Len returns the number of cached paths
func (p *PathEngine) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Search matches the whitespace-separated keywords of query against every
// cached path. A hit scores the number of distinct keywords it contains;
// hits are ordered by score, then by cache position.
func (p *PathEngine) Search(ctx context.Context, query string) []PathHit {
	keywords := strings.Fields(query)
	if len(keywords) == 0 {
		return nil
	}
	matcher := newKeywordMatcher(keywords)
	pool := singleKeywordPool
	if len(keywords) > 1 {
		pool = multiKeywordPool
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	shards := runtime.NumCPU()
	size := (len(p.entries) + shards - 1) / shards
	if size == 0 {
		return nil
	}
	results := make([][]PathHit, shards)

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		lo := s * size
		if lo >= len(p.entries) {
			break
		}
		hi := min(lo+size, len(p.entries))
		g.Go(func() error {
			var hits []PathHit
			for i := lo; i < hi && len(hits) < pool; i++ {
				if i%pathPageSize == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				e := p.entries[i]
				matched := matcher.matchedKeywords(e.Path)
				if len(matched) == 0 {
					continue
				}
				kws := make([]string, len(matched))
				for j, k := range matched {
					kws[j] = keywords[k]
				}
				hits = append(hits, PathHit{Entry: e, Score: float64(len(matched)), Keywords: kws, position: i})
			}
			results[s] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil
	}

	var hits []PathHit
	for _, r := range results {
		hits = append(hits, r...)
		if len(hits) >= pool {
			hits = hits[:pool]
			break
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].position < hits[j].position
	})
	if len(hits) > PathResultLimit {
		hits = hits[:PathResultLimit]
	}
	return hits
}
