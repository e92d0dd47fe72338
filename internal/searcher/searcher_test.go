package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// mockEmbedder returns fixed vectors per text
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return axis(embedder.Dimension - 1), nil
}

func (m *mockEmbedder) ModelName() string { return "mock" }

// axis returns a unit vector along dimension i
func axis(i int) []float32 {
	v := make([]float32, embedder.Dimension)
	v[i] = 1
	return v
}

// blend returns a unit-length mix of two axes
func blend(i, j int, wi, wj float32) []float32 {
	v := make([]float32, embedder.Dimension)
	v[i] = wi
	v[j] = wj
	return v
}

func newTestStore(t testing.TB) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addFile(t testing.TB, store storage.Storage, path string) *types.FileRecord {
	t.Helper()
	ext := types.ExtOf(path)
	rec := &types.FileRecord{
		Name:     filepath.Base(path),
		Path:     path,
		Ext:      ext,
		Category: types.CategoryForExt(ext),
		Hash:     fmt.Sprintf("%x", path),
	}
	require.NoError(t, store.CreateFile(context.Background(), rec))
	return rec
}

func TestFuse(t *testing.T) {
	path := []types.SearchResult{
		{Score: 10, Source: types.SourcePath, File: types.FileRecord{Path: "/a.txt"}, MatchedKeywords: []string{"a"}},
		{Score: 10, Source: types.SourcePath, File: types.FileRecord{Path: "/b.txt"}},
	}
	semantic := []types.SearchResult{
		{Score: 0.8, Source: types.SourceSemantic, File: types.FileRecord{Path: "/b.txt"}, Distance: 0.2, MatchedChunkIDs: []int64{7}},
		{Score: 0.8, Source: types.SourceSemantic, File: types.FileRecord{Path: "/c.txt"}, Distance: 0.2},
	}

	fused := Fuse(path, semantic)
	require.Len(t, fused, 3)

	assert.Equal(t, "/a.txt", fused[0].File.Path)
	assert.InDelta(t, 10, fused[0].Score, 1e-9)
	assert.Equal(t, types.SourcePath, fused[0].Source)

	assert.Equal(t, "/b.txt", fused[1].File.Path)
	assert.InDelta(t, 10*0.6+0.8*0.4, fused[1].Score, 1e-9)
	assert.Equal(t, types.SourceHybrid, fused[1].Source)
	assert.Equal(t, []int64{7}, fused[1].MatchedChunkIDs)

	assert.Equal(t, "/c.txt", fused[2].File.Path)
	assert.InDelta(t, 0.8*0.4, fused[2].Score, 1e-9)
	assert.Equal(t, types.SourceSemantic, fused[2].Source)
}

func TestFuse_TieOrderedByPath(t *testing.T) {
	fused := Fuse([]types.SearchResult{
		{Score: 1, File: types.FileRecord{Path: "/z"}},
		{Score: 1, File: types.FileRecord{Path: "/m"}},
	}, nil)
	assert.Equal(t, "/m", fused[0].File.Path)
	assert.Equal(t, "/z", fused[1].File.Path)
}

func TestParseSearchMode(t *testing.T) {
	m, err := ParseSearchMode("")
	require.NoError(t, err)
	assert.Equal(t, SearchModeAuto, m)

	m, err = ParseSearchMode(" Semantic ")
	require.NoError(t, err)
	assert.Equal(t, SearchModeSemantic, m)

	_, err = ParseSearchMode("keyword")
	assert.Error(t, err)
}

type searchFixture struct {
	store    *storage.SQLiteStorage
	emb      *mockEmbedder
	searcher *Searcher
}

func setupSearcher(t *testing.T) *searchFixture {
	t.Helper()
	ctx := context.Background()
	store := newTestStore(t)
	emb := &mockEmbedder{vectors: map[string][]float32{}}

	budget := addFile(t, store, "/docs/budget-2024.xlsx")
	trip := addFile(t, store, "/docs/trip-plan.md")
	addFile(t, store, "/music/song.mp3")

	// budget content sits on axis 0, trip metadata close to axis 1
	require.NoError(t, store.InsertContentEmbedding(ctx, &storage.ContentEmbedding{FileID: budget.ID, ChunkIndex: 0, ChunkText: "spend", Vector: axis(0)}))
	require.NoError(t, store.InsertMetadataEmbedding(ctx, &storage.MetadataEmbedding{FileID: trip.ID, Vector: blend(1, 2, 0.8, 0.6)}))

	paths := NewPathEngine(store, logging.Discard())
	require.NoError(t, paths.Build(ctx))
	semantic := NewSemanticEngine(SemanticConfig{Store: store, Embedder: emb, Logger: logging.Discard()})

	return &searchFixture{
		store:    store,
		emb:      emb,
		searcher: NewSearcher(store, paths, semantic, logging.Discard()),
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := setupSearcher(t)
	_, err := f.searcher.Search(context.Background(), SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_PathOnly(t *testing.T) {
	f := setupSearcher(t)
	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "budget"})
	require.NoError(t, err)

	assert.Equal(t, types.IntentPathOnly, resp.Intent)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/docs/budget-2024.xlsx", resp.Results[0].File.Path)
	assert.Equal(t, []string{"budget"}, resp.Results[0].MatchedKeywords)
	assert.Equal(t, 0, f.emb.calls, "path-only queries are not embedded")
}

func TestSearch_Semantic(t *testing.T) {
	f := setupSearcher(t)
	f.emb.vectors["how much did we spend"] = axis(0)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "how much did we spend", Mode: SearchModeSemantic})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "/docs/budget-2024.xlsx", r.File.Path)
	assert.Equal(t, types.SourceSemantic, r.Source)
	assert.InDelta(t, 1.0, r.Score, 1e-6)
	assert.Len(t, r.MatchedChunkIDs, 1)
}

func TestSearch_SemanticMetadataOnly(t *testing.T) {
	f := setupSearcher(t)
	f.emb.vectors["vacation"] = axis(1)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "vacation", Mode: SearchModeSemantic})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/docs/trip-plan.md", resp.Results[0].File.Path)
	assert.InDelta(t, 0.8, resp.Results[0].Score, 1e-6)
	assert.Empty(t, resp.Results[0].MatchedChunkIDs)
}

func TestSearch_HybridFusesByPath(t *testing.T) {
	f := setupSearcher(t)
	q := "budget notes for the team"
	f.emb.vectors[q] = axis(0)

	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: q})
	require.NoError(t, err)
	assert.Equal(t, types.IntentHybrid, resp.Intent)

	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "/docs/budget-2024.xlsx", top.File.Path)
	assert.Equal(t, types.SourceHybrid, top.Source)
	assert.InDelta(t, 1*0.6+1*0.4, top.Score, 1e-6)
}

func TestSearch_SemanticFailureDegrades(t *testing.T) {
	f := setupSearcher(t)
	f.emb.err = errors.New("model unavailable")

	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "budget", Mode: SearchModeHybrid})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, types.SourcePath, resp.Results[0].Source)
	assert.Equal(t, 0, resp.SemanticResults)
}

func TestSearch_DeletedFileDropped(t *testing.T) {
	f := setupSearcher(t)
	rec, err := f.store.GetFileByPath(context.Background(), "/docs/trip-plan.md")
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteFile(context.Background(), rec.ID))

	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "trip"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_Limit(t *testing.T) {
	f := setupSearcher(t)
	resp, err := f.searcher.Search(context.Background(), SearchRequest{Query: "docs", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_Cache(t *testing.T) {
	f := setupSearcher(t)
	f.emb.vectors["what is that spend"] = axis(0)
	req := SearchRequest{Query: "what is that spend", UseCache: true, CacheTTL: time.Minute}

	first, err := f.searcher.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.searcher.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, f.emb.calls)

	f.searcher.InvalidateCache()
	third, err := f.searcher.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestComputeQueryHash(t *testing.T) {
	a := computeQueryHash(SearchRequest{Query: "x", Mode: SearchModeAuto})
	b := computeQueryHash(SearchRequest{Query: "x", Mode: SearchModePath})
	c := computeQueryHash(SearchRequest{Query: "x", Mode: SearchModeAuto})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}
