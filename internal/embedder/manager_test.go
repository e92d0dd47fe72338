package embedder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/logging"
)

// wordTokenizer maps each whitespace-separated word to its length
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = len(w)
	}
	return ids
}

func (wordTokenizer) Decode(ids []int) string {
	words := make([]string, len(ids))
	for i, n := range ids {
		words[i] = strings.Repeat("x", n)
	}
	return strings.Join(words, " ")
}

func (w wordTokenizer) Count(text string) int { return len(w.Encode(text)) }

func openWords(ModelSpec) (Tokenizer, error) { return wordTokenizer{}, nil }

// charTokenizer counts every rune as a token
type charTokenizer struct{ wordTokenizer }

func (charTokenizer) Count(text string) int { return len([]rune(text)) }

type mockSession struct {
	mu        sync.Mutex
	runs      []Inputs
	closed    int
	maxTokens int
	block     chan struct{}
}

func (s *mockSession) Run(_ context.Context, in Inputs) (Tensor, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.runs = append(s.runs, in)
	s.mu.Unlock()
	return Tensor{Shape: []int{1, Dimension}, Data: filled(Dimension, float32(len(in.InputIDs)))}, nil
}

func (s *mockSession) MaxTokens() int { return s.maxTokens }

func (s *mockSession) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

type mockLoader struct {
	mu       sync.Mutex
	loads    []ModelSpec
	sessions []*mockSession
	err      error
	block    chan struct{}
}

func (l *mockLoader) Resolve(language string) ModelSpec {
	if language == config.LanguageMultilingual {
		return ModelSpec{Name: ModelMultilingual, Tokenizer: "words-multi", MaxTokens: 4}
	}
	return ModelSpec{Name: ModelEnglish, Tokenizer: "words-en", MaxTokens: 4}
}

func (l *mockLoader) Load(_ context.Context, spec ModelSpec) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, spec)
	if l.err != nil {
		return nil, l.err
	}
	s := &mockSession{maxTokens: spec.MaxTokens, block: l.block}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *mockLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads)
}

func newTestManager(loader Loader) *Manager {
	return NewManager(ManagerConfig{
		Loader:      loader,
		Tokenizers:  openWords,
		TTL:         time.Minute,
		LockTimeout: 50 * time.Millisecond,
		Logger:      logging.Discard(),
	})
}

func TestManager_LazyLoadAndWarmup(t *testing.T) {
	loader := &mockLoader{}
	m := newTestManager(loader)
	ctx := context.Background()

	assert.False(t, m.Loaded())
	require.NoError(t, m.Warmup(ctx))
	require.NoError(t, m.Warmup(ctx))
	assert.True(t, m.Loaded())
	assert.Equal(t, 1, loader.loadCount())

	_, err := m.Embed(ctx, "hello there")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loadCount())
}

func TestManager_EmbedTruncatesToModelLimit(t *testing.T) {
	loader := &mockLoader{}
	m := newTestManager(loader)

	vec, err := m.Embed(context.Background(), "one two three four five six")
	require.NoError(t, err)
	require.Len(t, vec, Dimension)
	assert.Equal(t, float32(4), vec[0], "input truncated to four tokens")

	run := loader.sessions[0].runs[0]
	assert.Equal(t, []int64{1, 1, 1, 1}, run.AttentionMask)
	assert.Equal(t, []int64{0, 0, 0, 0}, run.TokenTypeIDs)
	assert.Equal(t, []int64{3, 3, 5, 4}, run.InputIDs)
}

func TestManager_EmptyText(t *testing.T) {
	m := newTestManager(&mockLoader{})
	_, err := m.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.False(t, m.Loaded())
}

func TestManager_LoadFailure(t *testing.T) {
	m := newTestManager(&mockLoader{err: errors.New("missing weights")})
	_, err := m.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestManager_RemoveIfExpired(t *testing.T) {
	loader := &mockLoader{}
	m := newTestManager(loader)
	require.NoError(t, m.Warmup(context.Background()))

	assert.False(t, m.RemoveIfExpired(time.Now()), "fresh session stays")
	assert.True(t, m.RemoveIfExpired(time.Now().Add(2*time.Minute)))
	assert.False(t, m.Loaded())
	assert.Equal(t, 1, loader.sessions[0].closed)
	assert.False(t, m.RemoveIfExpired(time.Now().Add(time.Hour)), "nothing left to remove")
}

func TestManager_RemoveIfExpiredSkipsBusySession(t *testing.T) {
	loader := &mockLoader{block: make(chan struct{})}
	m := newTestManager(loader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Embed(context.Background(), "slow call")
	}()

	require.Eventually(t, func() bool { return loader.loadCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.RemoveIfExpired(time.Now().Add(time.Hour)))

	close(loader.block)
	<-done
	assert.True(t, m.Loaded())
}

func TestManager_LockTimeout(t *testing.T) {
	loader := &mockLoader{block: make(chan struct{})}
	m := newTestManager(loader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Embed(context.Background(), "first")
	}()
	require.Eventually(t, func() bool { return loader.loadCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := m.Embed(context.Background(), "second")
	assert.ErrorIs(t, err, ErrLockTimeout)

	close(loader.block)
	<-done
}

func TestManager_SetLanguage(t *testing.T) {
	loader := &mockLoader{}
	m := newTestManager(loader)
	ctx := context.Background()

	assert.Equal(t, ModelEnglish, m.ModelName())
	require.NoError(t, m.Warmup(ctx))

	m.SetLanguage(config.LanguageEnglish)
	assert.True(t, m.Loaded(), "same language keeps the session")

	m.SetLanguage(config.LanguageMultilingual)
	assert.False(t, m.Loaded())
	assert.Equal(t, ModelMultilingual, m.ModelName())

	require.NoError(t, m.Warmup(ctx))
	assert.Equal(t, ModelMultilingual, loader.loads[1].Name)
}

func TestManager_LoadsTokenizerWithModel(t *testing.T) {
	loader := &mockLoader{}
	var mu sync.Mutex
	var opened []string
	m := NewManager(ManagerConfig{
		Loader: loader,
		Tokenizers: func(spec ModelSpec) (Tokenizer, error) {
			mu.Lock()
			opened = append(opened, spec.Tokenizer)
			mu.Unlock()
			if spec.Tokenizer == "words-multi" {
				return charTokenizer{}, nil
			}
			return wordTokenizer{}, nil
		},
		Logger: logging.Discard(),
	})
	ctx := context.Background()

	assert.Equal(t, 2, m.Count("hello world"))
	require.NoError(t, m.Warmup(ctx))

	m.SetLanguage(config.LanguageMultilingual)
	assert.Equal(t, 11, m.Count("hello world"), "multilingual model counts with its own tokenizer")
	require.NoError(t, m.Warmup(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"words-en", "words-multi"}, opened, "each tokenizer is opened once")
}

func TestManager_TokenizerLoadFailure(t *testing.T) {
	loader := &mockLoader{}
	m := NewManager(ManagerConfig{
		Loader: loader,
		Tokenizers: func(ModelSpec) (Tokenizer, error) {
			return nil, errors.New("tokenizer.json missing")
		},
		Logger: logging.Discard(),
	})

	_, err := m.Embed(context.Background(), "some text")
	assert.ErrorIs(t, err, ErrSessionUnavailable)
	assert.False(t, m.Loaded())
	assert.Zero(t, loader.loadCount(), "no session without its tokenizer")
	assert.Equal(t, 3, m.Count("counted in words"))
}

func TestManager_Clear(t *testing.T) {
	loader := &mockLoader{}
	m := newTestManager(loader)
	require.NoError(t, m.Warmup(context.Background()))

	m.Clear()
	assert.False(t, m.Loaded())
	m.Clear()
	assert.Equal(t, 1, loader.sessions[0].closed)
}

func TestManager_Sweeper(t *testing.T) {
	loader := &mockLoader{}
	m := NewManager(ManagerConfig{
		Loader:    loader,
		Tokenizers: openWords,
		TTL:       time.Millisecond,
		Logger:    logging.Discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Warmup(ctx))
	m.StartSweeper(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !m.Loaded() }, time.Second, 5*time.Millisecond)
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return filled(Dimension, float32(len(text))), nil
}

func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	a, err := e.Embed(ctx, "query")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "query")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "counting", e.ModelName())

	e.Purge()
	_, err = e.Embed(ctx, "query")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
