package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesift/internal/chunker"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/extractor"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/runstate"
	"github.com/dshills/filesift/internal/scanner"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// mockEmbedder returns a vector derived from the text
type mockEmbedder struct {
	mu         sync.Mutex
	calls      []string
	failOn     string
	sessionErr error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	m.calls = append(m.calls, text)
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, errors.New("inference failed")
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := float32(h.Sum32()%1000) / 1000
	v := make([]float32, embedder.Dimension)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v, nil
}

func (m *mockEmbedder) ModelName() string { return "mock" }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// wordCounter counts whitespace-separated words
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type fixture struct {
	store *storage.SQLiteStorage
	emb   *mockEmbedder
	flags *runstate.Flags
	ix    *Indexer
	dir   string
}

func setup(t *testing.T, pageSize int) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, emb: &mockEmbedder{}, flags: &runstate.Flags{}, dir: t.TempDir()}
	f.ix, err = New(Config{
		Store:    store,
		Embedder: f.emb,
		Splitter: chunker.NewSplitter(wordCounter{}, 8, 2),
		Flags:    f.flags,
		PageSize: pageSize,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return f
}

// add writes a file and registers it as Waiting
func (f *fixture) add(t *testing.T, name, content string) *types.FileRecord {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := scanner.Inspect(path)
	require.NoError(t, err)
	rec, _, err := scanner.Resolve(context.Background(), f.store, info)
	require.NoError(t, err)
	return rec
}

func (f *fixture) documents() *Template {
	return f.ix.NewTemplate(types.CategoryDocument, DocumentSource{Registry: extractor.DefaultRegistry()}, nil)
}

func (f *fixture) get(t *testing.T, id int64) *types.FileRecord {
	t.Helper()
	rec, err := f.store.GetFile(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestProcessIndexesDocuments(t *testing.T) {
	f := setup(t, DefaultPageSize)
	ctx := context.Background()
	rec := f.add(t, "notes.txt", "quarterly budget review\n\n\n\nfor the marketing team and the sales team together")

	var events []types.ProgressEvent
	tmpl := f.ix.NewTemplate(types.CategoryDocument, DocumentSource{Registry: extractor.DefaultRegistry()},
		func(ev types.ProgressEvent) { events = append(events, ev) })
	require.NoError(t, tmpl.Process(ctx, 7))

	got := f.get(t, rec.ID)
	assert.Equal(t, types.StatusIndexed, got.ContentStatus)
	assert.Equal(t, MsgSuccess, got.ContentStatusMsg)
	assert.Equal(t, types.StatusIndexed, got.MetaStatus)
	assert.Equal(t, "quarterly budget review\nfor the marketing team and the sales team together", got.Content)

	chunks, err := f.store.ListContentEmbeddings(ctx, rec.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
	_, err = f.store.GetMetadataEmbedding(ctx, rec.ID)
	assert.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, types.ProgressEmbed, events[0].Kind)
	assert.Equal(t, int64(7), events[0].TaskID)
	assert.Equal(t, rec.Path, events[0].Message)

	snap := f.ix.Summary().Document.Snapshot()
	assert.Equal(t, int64(1), snap.Total)
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Success)
}

func TestProcessEmptyContentSkipped(t *testing.T) {
	f := setup(t, DefaultPageSize)
	rec := f.add(t, "empty.md", "\n\n   \n")

	require.NoError(t, f.documents().Process(context.Background(), 0))

	got := f.get(t, rec.ID)
	assert.Equal(t, types.StatusIndexed, got.ContentStatus)
	assert.Equal(t, MsgSkippedEmpty, got.ContentStatusMsg)
	assert.Equal(t, types.StatusIndexed, got.MetaStatus)
	assert.Equal(t, int64(1), f.ix.Summary().Document.Snapshot().Skipped)

	chunks, err := f.store.ListContentEmbeddings(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessDeletesMissingFiles(t *testing.T) {
	f := setup(t, DefaultPageSize)
	rec := f.add(t, "gone.txt", "soon deleted")
	require.NoError(t, os.Remove(rec.Path))

	require.NoError(t, f.documents().Process(context.Background(), 0))

	_, err := f.store.GetFile(context.Background(), rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, int64(1), f.ix.Summary().Document.Snapshot().Failed)
	assert.Zero(t, f.emb.callCount())
}

func TestProcessChunkFailure(t *testing.T) {
	f := setup(t, DefaultPageSize)
	f.emb.failOn = "poison"
	bad := f.add(t, "bad.txt", "this text carries poison inside")
	good := f.add(t, "good.txt", "this text is fine")

	require.NoError(t, f.documents().Process(context.Background(), 0))

	gotBad := f.get(t, bad.ID)
	assert.Equal(t, types.StatusIndexFailed, gotBad.ContentStatus)
	assert.Contains(t, gotBad.ContentStatusMsg, "inference failed")
	assert.Equal(t, types.StatusIndexed, gotBad.MetaStatus, "metadata is embedded independently")

	assert.Equal(t, types.StatusIndexed, f.get(t, good.ID).ContentStatus)

	snap := f.ix.Summary().Document.Snapshot()
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.Success)
}

func TestProcessLaterChunkFailureLeavesNoChunks(t *testing.T) {
	f := setup(t, DefaultPageSize)
	f.emb.failOn = "poison"
	// Eight-word chunks: the failing word comes after two full chunks
	rec := f.add(t, "long.txt", "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron pi rho sigma poison tau upsilon")

	require.NoError(t, f.documents().Process(context.Background(), 0))

	got := f.get(t, rec.ID)
	assert.Equal(t, types.StatusIndexFailed, got.ContentStatus)
	assert.Contains(t, got.ContentStatusMsg, "chunk")
	assert.Greater(t, f.emb.callCount(), 2, "earlier chunks were embedded before the failure")

	chunks, err := f.store.ListContentEmbeddings(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessSessionFailureAbortsRun(t *testing.T) {
	f := setup(t, DefaultPageSize)
	f.emb.sessionErr = fmt.Errorf("%w: no model", embedder.ErrSessionUnavailable)
	first := f.add(t, "a.txt", "alpha")
	f.add(t, "b.txt", "beta")

	err := f.documents().Process(context.Background(), 0)
	require.ErrorIs(t, err, embedder.ErrSessionUnavailable)

	got := f.get(t, first.ID)
	assert.Equal(t, types.StatusWaiting, got.ContentStatus)

	n, err := f.store.CountUnindexedFiles(context.Background(), types.CategoryDocument)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestProcessHonorsStop(t *testing.T) {
	f := setup(t, DefaultPageSize)
	rec := f.add(t, "a.txt", "alpha")
	f.flags.RequestStop()

	require.NoError(t, f.documents().Process(context.Background(), 0))
	assert.Equal(t, types.StatusWaiting, f.get(t, rec.ID).ContentStatus)
	assert.Zero(t, f.emb.callCount())
}

func TestProcessPages(t *testing.T) {
	f := setup(t, 2)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.add(t, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("document number %d", i)).ID)
	}
	// Another category is left alone
	img := f.add(t, "pic.png", "not an image")

	require.NoError(t, f.documents().Process(context.Background(), 0))
	for _, id := range ids {
		assert.Equal(t, types.StatusIndexed, f.get(t, id).ContentStatus)
	}
	assert.Equal(t, types.StatusWaiting, f.get(t, img.ID).ContentStatus)
	assert.Equal(t, int64(5), f.ix.Summary().Document.Snapshot().Processed)
}

func TestReembeddingIsIdempotent(t *testing.T) {
	f := setup(t, DefaultPageSize)
	ctx := context.Background()
	rec := f.add(t, "doc.md", strings.Repeat("the same words repeated again ", 10))
	tmpl := f.documents()

	require.NoError(t, tmpl.EmbedFile(ctx, f.get(t, rec.ID)))
	first, err := f.store.ListContentEmbeddings(ctx, rec.ID)
	require.NoError(t, err)

	require.NoError(t, tmpl.EmbedFile(ctx, f.get(t, rec.ID)))
	second, err := f.store.ListContentEmbeddings(ctx, rec.ID)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkIndex, second[i].ChunkIndex)
		assert.Equal(t, first[i].ChunkText, second[i].ChunkText)
		assert.Equal(t, first[i].Vector, second[i].Vector)
	}
}

func TestReembeddingWithLocalModel(t *testing.T) {
	mgr := embedder.NewManager(embedder.ManagerConfig{
		Loader: embedder.NewLocalLoader(t.TempDir()),
		Logger: logging.Discard(),
	})
	t.Cleanup(mgr.Clear)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ix, err := New(Config{Store: store, Embedder: mgr, Counter: mgr, Logger: logging.Discard()})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("local models embed the same text the same way"), 0o644))
	info, err := scanner.Inspect(path)
	require.NoError(t, err)
	rec, _, err := scanner.Resolve(context.Background(), store, info)
	require.NoError(t, err)

	tmpl := ix.NewTemplate(types.CategoryDocument, DocumentSource{Registry: extractor.DefaultRegistry()}, nil)
	require.NoError(t, tmpl.Process(context.Background(), 0))
	first, err := store.ListContentEmbeddings(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, store.UpdateContentStatus(context.Background(), rec.ID, types.StatusWaiting, ""))
	require.NoError(t, tmpl.Process(context.Background(), 0))
	second, err := store.ListContentEmbeddings(context.Background(), rec.ID)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkText, second[i].ChunkText)
		assert.Equal(t, first[i].Vector, second[i].Vector)
	}
}

type fakeImageAnalyzer struct {
	model string
	reply string
	err   error
}

func (a *fakeImageAnalyzer) AnalyzeImage(_ context.Context, model, _ string) (string, error) {
	a.model = model
	return a.reply, a.err
}

func TestImageSource(t *testing.T) {
	f := setup(t, DefaultPageSize)
	analyzer := &fakeImageAnalyzer{reply: "a cat sleeping on a red sofa"}
	rec := f.add(t, "cat.png", "png bytes")

	tmpl := f.ix.NewTemplate(types.CategoryImage, ImageSource{Analyzer: analyzer, Model: "vision-1"}, nil)
	require.NoError(t, tmpl.Process(context.Background(), 0))

	got := f.get(t, rec.ID)
	assert.Equal(t, "vision-1", analyzer.model)
	assert.Equal(t, "a cat sleeping on a red sofa", got.Content)
	assert.Equal(t, types.StatusIndexed, got.ContentStatus)
	assert.Equal(t, int64(1), f.ix.Summary().Image.Snapshot().Success)
}

func TestUnsupportedMediaIsSkipped(t *testing.T) {
	f := setup(t, DefaultPageSize)
	analyzer := &fakeImageAnalyzer{err: fmt.Errorf("%w: platform deepseek", types.ErrUnsupported)}
	rec := f.add(t, "cat.png", "png bytes")

	tmpl := f.ix.NewTemplate(types.CategoryImage, ImageSource{Analyzer: analyzer}, nil)
	require.NoError(t, tmpl.Process(context.Background(), 0))

	got := f.get(t, rec.ID)
	assert.Equal(t, types.StatusIndexed, got.ContentStatus)
	assert.Equal(t, MsgSkippedEmpty, got.ContentStatusMsg)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, err = New(Config{Store: store, Embedder: &mockEmbedder{}})
	assert.Error(t, err, "a splitter or counter is required")
}
