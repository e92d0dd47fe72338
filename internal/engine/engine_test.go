package engine

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/extractor"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/searcher"
	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// mockEmbedding is an in-process EmbeddingService. When gate is set, Embed
// blocks until gate is closed and signals entered on the first call.
type mockEmbedding struct {
	mu       sync.Mutex
	model    string
	language string
	calls    int
	clears   int

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (m *mockEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.gate != nil {
		m.once.Do(func() { close(m.entered) })
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := float32(h.Sum32()%1000) / 1000
	v := make([]float32, embedder.Dimension)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v, nil
}

func (m *mockEmbedding) ModelName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *mockEmbedding) setModel(name string) {
	m.mu.Lock()
	m.model = name
	m.mu.Unlock()
}

func (m *mockEmbedding) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEmbedding) Warmup(context.Context) error { return nil }

func (m *mockEmbedding) Clear() {
	m.mu.Lock()
	m.clears++
	m.mu.Unlock()
}

func (m *mockEmbedding) SetLanguage(language string) {
	m.mu.Lock()
	m.language = language
	m.mu.Unlock()
}

func (m *mockEmbedding) StartSweeper(context.Context, time.Duration) {}

// fakeAnalyzer describes media by file name
type fakeAnalyzer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeAnalyzer) record(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return "a description of " + filepath.Base(path)
}

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, _, path string) (string, error) {
	return f.record(path), nil
}

func (f *fakeAnalyzer) AnalyzeAudio(_ context.Context, _, path string) (string, error) {
	return f.record(path), nil
}

func (f *fakeAnalyzer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type fixture struct {
	eng      *Engine
	store    *storage.SQLiteStorage
	emb      *mockEmbedding
	settings *config.SettingsStore
	dir      string
}

func setup(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		emb:      &mockEmbedding{model: "mock-en"},
		settings: config.NewMemorySettings(config.DefaultSettings()),
		dir:      t.TempDir(),
	}
	cfg := Config{
		Store:         store,
		Settings:      f.settings,
		Embedding:     f.emb,
		Counter:       wordCounter{},
		FlushInterval: 10 * time.Millisecond,
		Logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.eng, err = New(cfg)
	require.NoError(t, err)
	require.NoError(t, f.eng.Start(context.Background()))
	t.Cleanup(func() { _ = f.eng.Close() })
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) get(t *testing.T, path string) *types.FileRecord {
	t.Helper()
	rec, err := f.store.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	return rec
}

func (f *fixture) enableMedia(t *testing.T, apiKey string) {
	t.Helper()
	require.NoError(t, f.settings.Update(func(s *config.Settings) {
		s.Indexer.IsPrivate = false
		s.Platform.APIKey = apiKey
	}))
}

// collect reads events until a Finish event or the timeout
func collect(t *testing.T, ch <-chan types.ProgressEvent) []types.ProgressEvent {
	t.Helper()
	var events []types.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Kind == types.ProgressFinish {
				return events
			}
		case <-timeout:
			t.Fatalf("no finish event, got %v", events)
			return nil
		}
	}
}

func kinds(events []types.ProgressEvent) []types.ProgressKind {
	out := make([]types.ProgressKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = New(Config{Embedding: &mockEmbedding{}, Counter: wordCounter{}})
	assert.Error(t, err)
	_, err = New(Config{Store: store, Counter: wordCounter{}})
	assert.Error(t, err)
	_, err = New(Config{Store: store, Embedding: &mockEmbedding{}})
	assert.Error(t, err)
}

func TestRunIndexing_Documents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := f.write(t, "quarterly-report.txt", "budget review for the platform team")

	task, err := f.eng.RunIndexing(ctx, []string{f.dir})
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, task.Status)
	assert.Equal(t, MsgPrivacySkip, task.Remark)
	assert.Equal(t, "mock-en", task.EmbeddingModel)
	assert.EqualValues(t, 1, task.Success)
	assert.False(t, task.EndTime.IsZero())

	stored, err := f.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, stored.Status)
	assert.Equal(t, MsgPrivacySkip, stored.Remark)

	rec := f.get(t, path)
	assert.Equal(t, types.StatusIndexed, rec.ContentStatus)

	resp, err := f.eng.Search(ctx, searcher.SearchRequest{Query: "quarterly", Mode: searcher.SearchModePath})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, path, resp.Results[0].File.Path)
}

func TestStartIndexing_Events(t *testing.T) {
	f := setup(t)
	f.write(t, "notes.md", "meeting notes about the launch")
	ch, unsubscribe := f.eng.Events().Subscribe(0)
	defer unsubscribe()

	task, err := f.eng.StartIndexing(context.Background(), []string{f.dir})
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, task.Status)

	events := collect(t, ch)
	k := kinds(events)
	require.GreaterOrEqual(t, len(k), 3)
	assert.Equal(t, types.ProgressStart, k[0])
	assert.Equal(t, types.ProgressScan, k[1])
	assert.Contains(t, k, types.ProgressEmbed)
	last := events[len(events)-1]
	assert.Equal(t, MsgPrivacySkip, last.Message)
	for _, ev := range events {
		assert.Equal(t, task.ID, ev.TaskID)
	}
}

func TestStartIndexing_RejectsEmptyPaths(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.eng.StartIndexing(ctx, nil)
	assert.ErrorIs(t, err, types.ErrEmptyPaths)
	_, err = f.eng.StartIndexing(ctx, []string{""})
	assert.ErrorIs(t, err, types.ErrEmptyPaths)

	_, err = f.store.LatestTask(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartIndexing_BusyAndStop(t *testing.T) {
	f := setup(t)
	f.emb.gate = make(chan struct{})
	f.emb.entered = make(chan struct{})
	f.write(t, "a.txt", "first document body")
	f.write(t, "b.txt", "second document body")
	ctx := context.Background()

	ch, unsubscribe := f.eng.Events().Subscribe(0)
	defer unsubscribe()

	task, err := f.eng.StartIndexing(ctx, []string{f.dir})
	require.NoError(t, err)

	select {
	case <-f.emb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("embedding never started")
	}

	_, err = f.eng.StartIndexing(ctx, []string{f.dir})
	assert.ErrorIs(t, err, types.ErrIndexingInProgress)
	assert.ErrorIs(t, f.eng.BackgroundIndex(ctx, f.dir), types.ErrIndexingInProgress)

	assert.True(t, f.eng.StopIndexing())
	close(f.emb.gate)

	events := collect(t, ch)
	assert.Contains(t, kinds(events), types.ProgressStop)
	assert.Equal(t, MsgStopped, events[len(events)-1].Message)

	stored, err := f.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCancelled, stored.Status)
	assert.Equal(t, MsgStopped, stored.Remark)

	require.Eventually(t, func() bool { return !f.eng.flags.Busy() }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, f.eng.StopIndexing())
	assert.False(t, f.eng.flags.StopRequested())
}

func TestRunIndexing_MissingAPIKey(t *testing.T) {
	f := setup(t)
	f.enableMedia(t, "")
	doc := f.write(t, "plan.txt", "roadmap for next year")
	img := f.write(t, "photo.png", "not really a png")

	task, err := f.eng.RunIndexing(context.Background(), []string{f.dir})
	require.ErrorIs(t, err, types.ErrPlatformMissingAPIKey)
	assert.EqualError(t, err, "Model platform 'openai' is missing API key configuration")
	assert.Equal(t, types.TaskCompleted, task.Status)
	assert.Equal(t, err.Error(), task.Remark)

	assert.Equal(t, types.StatusIndexed, f.get(t, doc).ContentStatus)
	assert.Equal(t, types.StatusWaiting, f.get(t, img).ContentStatus)
}

func TestRunIndexing_Media(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	f := setup(t, func(c *Config) {
		c.NewAnalyzers = func(p config.PlatformSetting) (*extractor.Analyzers, error) {
			if !p.Enabled() {
				return nil, &types.MissingAPIKeyError{Platform: p.Name}
			}
			// images only
			return &extractor.Analyzers{Platform: p.Name, Image: analyzer, VisionModel: "vision"}, nil
		}
	})
	f.enableMedia(t, "key")
	img := f.write(t, "beach.png", "png bytes")
	song := f.write(t, "song.mp3", "mp3 bytes")

	task, err := f.eng.RunIndexing(context.Background(), []string{f.dir})
	require.NoError(t, err)
	assert.Equal(t, MsgDone, task.Remark)

	assert.Equal(t, []string{img}, analyzer.seen())
	rec := f.get(t, img)
	assert.Equal(t, types.StatusIndexed, rec.ContentStatus)
	assert.Equal(t, types.StatusWaiting, f.get(t, song).ContentStatus)
}

func TestIndexFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	path := f.write(t, "draft.txt", "an unfinished draft")
	require.NoError(t, f.eng.IndexFile(ctx, path))
	assert.Equal(t, types.StatusIndexed, f.get(t, path).ContentStatus)
	calls := f.emb.callCount()
	assert.Positive(t, calls)

	// unchanged content is not embedded again
	require.NoError(t, f.eng.IndexFile(ctx, path))
	assert.Equal(t, calls, f.emb.callCount())

	ignored := f.write(t, "node_modules/pkg/readme.txt", "dependency")
	require.NoError(t, f.eng.IndexFile(ctx, ignored))
	_, err := f.store.GetFileByPath(ctx, ignored)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// private: media is registered but not analyzed
	img := f.write(t, "cat.jpg", "jpeg bytes")
	require.NoError(t, f.eng.IndexFile(ctx, img))
	assert.Equal(t, types.StatusWaiting, f.get(t, img).ContentStatus)
}

func TestIndexFile_DuringRunLeavesFileWaiting(t *testing.T) {
	f := setup(t)
	f.emb.gate = make(chan struct{})
	f.emb.entered = make(chan struct{})
	f.write(t, "a.txt", "first document body")
	ctx := context.Background()

	ch, unsubscribe := f.eng.Events().Subscribe(0)
	defer unsubscribe()

	_, err := f.eng.StartIndexing(ctx, []string{f.dir})
	require.NoError(t, err)
	select {
	case <-f.emb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("embedding never started")
	}

	late := f.write(t, "late.txt", "arrived while the run was embedding")
	calls := f.emb.callCount()
	require.NoError(t, f.eng.IndexFile(ctx, late))
	assert.Equal(t, types.StatusWaiting, f.get(t, late).ContentStatus)
	assert.Equal(t, calls, f.emb.callCount())

	close(f.emb.gate)
	collect(t, ch)
	require.Eventually(t, func() bool { return !f.eng.flags.Busy() }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.eng.IndexFile(ctx, late))
	assert.Equal(t, types.StatusIndexed, f.get(t, late).ContentStatus)
}

func TestRemoveIndex(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.write(t, "sub/a.txt", "alpha")
	f.write(t, "sub/b.txt", "beta")
	c := f.write(t, "gamma.txt", "third")
	_, err := f.eng.RunIndexing(ctx, []string{f.dir})
	require.NoError(t, err)

	require.NoError(t, f.eng.RemoveFileIndex(ctx, filepath.Join(f.dir, "missing.txt")))
	require.NoError(t, f.eng.RemoveFileIndex(ctx, c))
	_, err = f.store.GetFileByPath(ctx, c)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.eng.RemoveDirectoryIndex(ctx, filepath.Join(f.dir, "sub")))
	n, err := f.store.CountFilesByPrefix(ctx, filepath.Join(f.dir, "sub"))
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.store.GetFileByPath(ctx, a)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	resp, err := f.eng.Search(ctx, searcher.SearchRequest{Query: "gamma", Mode: searcher.SearchModePath})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestRenameFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	from := f.write(t, "alpha.txt", "renamed later")
	_, err := f.eng.RunIndexing(ctx, []string{f.dir})
	require.NoError(t, err)
	before := f.get(t, from)
	calls := f.emb.callCount()

	to := filepath.Join(f.dir, "omega.txt")
	require.NoError(t, os.Rename(from, to))
	moved, err := f.eng.RenameFile(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, moved)

	after := f.get(t, to)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, types.StatusIndexed, after.ContentStatus)
	assert.Equal(t, calls, f.emb.callCount())

	resp, err := f.eng.Search(ctx, searcher.SearchRequest{Query: "omega", Mode: searcher.SearchModePath})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, to, resp.Results[0].File.Path)

	moved, err = f.eng.RenameFile(ctx, filepath.Join(f.dir, "nope.txt"), to)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestRenameDirectory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.write(t, "old/x.txt", "inside")
	_, err := f.eng.RunIndexing(ctx, []string{f.dir})
	require.NoError(t, err)

	from, to := filepath.Join(f.dir, "old"), filepath.Join(f.dir, "new")
	require.NoError(t, os.Rename(from, to))
	n, err := f.eng.RenameDirectory(ctx, from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	f.get(t, filepath.Join(to, "x.txt"))

	n, err = f.eng.RenameDirectory(ctx, filepath.Join(f.dir, "ghost"), to)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBackgroundIndex(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := f.write(t, "later.txt", "found by the watcher")

	assert.ErrorIs(t, f.eng.BackgroundIndex(ctx, ""), types.ErrEmptyPaths)
	require.NoError(t, f.eng.BackgroundIndex(ctx, f.dir))
	assert.Equal(t, types.StatusIndexed, f.get(t, path).ContentStatus)

	_, err := f.store.LatestTask(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.eng.flags.Busy())
}

func TestWatchedPaths(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := f.write(t, "watched.txt", "kept in sync")

	assert.Error(t, f.eng.AddWatchedPath(ctx, filepath.Join(f.dir, "missing")))
	require.NoError(t, f.eng.AddWatchedPath(ctx, f.dir))
	assert.Contains(t, f.settings.Get().Watcher.Directories, f.dir)

	require.Eventually(t, func() bool {
		rec, err := f.store.GetFileByPath(ctx, path)
		return err == nil && rec.ContentStatus == types.StatusIndexed
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.eng.RemoveWatchedPath(ctx, f.dir))
	assert.NotContains(t, f.settings.Get().Watcher.Directories, f.dir)
}

func TestEmbeddingModelChanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	changed, err := f.eng.EmbeddingModelChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	f.write(t, "a.txt", "text")
	_, err = f.eng.RunIndexing(ctx, []string{f.dir})
	require.NoError(t, err)
	changed, err = f.eng.EmbeddingModelChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	f.emb.setModel("mock-multilingual")
	changed, err = f.eng.EmbeddingModelChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	st, err := f.eng.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.ModelChanged)
	require.NotNil(t, st.LatestTask)
	assert.Equal(t, "mock-en", st.LatestTask.EmbeddingModel)
	assert.EqualValues(t, 1, st.Document.Success)
	assert.False(t, st.Indexing)
}

func TestSetContentLanguage(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.eng.SetContentLanguage(config.LanguageMultilingual))
	assert.Equal(t, config.LanguageMultilingual, f.settings.Get().ContentLanguage)
	f.emb.mu.Lock()
	assert.Equal(t, config.LanguageMultilingual, f.emb.language)
	assert.Equal(t, 1, f.emb.clears)
	f.emb.mu.Unlock()

	require.NoError(t, f.eng.SetContentLanguage(config.LanguageMultilingual))
	f.emb.mu.Lock()
	assert.Equal(t, 1, f.emb.clears)
	f.emb.mu.Unlock()
}

func TestEvents(t *testing.T) {
	hub := NewEvents()
	ch, unsubscribe := hub.Subscribe(1)
	other, unsubscribeOther := hub.Subscribe(4)
	defer unsubscribeOther()

	for i := range 3 {
		hub.Publish(types.ProgressEvent{Kind: types.ProgressEmbed, TaskID: int64(i)})
	}

	// a full subscriber drops events without blocking the others
	ev := <-ch
	assert.EqualValues(t, 0, ev.TaskID)
	assert.Len(t, other, 3)

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)

	hub.Publish(types.ProgressEvent{Kind: types.ProgressFinish})
	assert.Len(t, other, 4)
}

func TestCleanPaths(t *testing.T) {
	got := cleanPaths([]string{"", "/a/b/", "/a/./c"})
	assert.Equal(t, []string{"/a/b", "/a/c"}, got)
	assert.Empty(t, cleanPaths(nil))
}
