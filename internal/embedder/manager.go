package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/logging"
)

const (
	// DefaultTTL is how long an idle session stays loaded
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often idle sessions are checked
	DefaultSweepInterval = 30 * time.Second
	// DefaultLockTimeout bounds how long Embed waits for the session
	DefaultLockTimeout = 2 * time.Minute
)

// Embedder turns text into vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// ManagerConfig holds Manager dependencies
type ManagerConfig struct {
	Loader Loader
	// Tokenizers opens the tokenizer a spec names (default: LoadTokenizer)
	Tokenizers  func(ModelSpec) (Tokenizer, error)
	Language    string
	TTL         time.Duration
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Manager owns the single embedding session: it loads it lazily, serializes
// inference through it and unloads it after TTL of inactivity.
type Manager struct {
	loader      Loader
	openTok     func(ModelSpec) (Tokenizer, error)
	ttl         time.Duration
	lockTimeout time.Duration
	logger      *slog.Logger

	// sem is a one-slot semaphore guarding session, tokenizer and spec
	sem       chan struct{}
	session   Session
	tokenizer Tokenizer
	spec      ModelSpec

	language atomic.Value // string
	lastUsed atomic.Int64 // unix nanos

	// tokenizers are shared with Count and live for the manager's lifetime
	tokMu      sync.Mutex
	tokenizers map[string]Tokenizer
	resolved   map[string]ModelSpec // by language
}

// NewManager creates a manager. No session is loaded until Warmup or Embed.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Language == "" {
		cfg.Language = config.LanguageEnglish
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewModuleLogger("embedder", "manager")
	}
	if cfg.Tokenizers == nil {
		cfg.Tokenizers = LoadTokenizer
	}
	m := &Manager{
		loader:      cfg.Loader,
		openTok:     cfg.Tokenizers,
		ttl:         cfg.TTL,
		lockTimeout: cfg.LockTimeout,
		logger:      cfg.Logger,
		sem:         make(chan struct{}, 1),
		tokenizers:  make(map[string]Tokenizer),
		resolved:    make(map[string]ModelSpec),
	}
	m.language.Store(cfg.Language)
	return m
}

func (m *Manager) lang() string {
	return m.language.Load().(string)
}

// resolve asks the loader for the language's model and remembers the answer
// for Count
func (m *Manager) resolve(language string) ModelSpec {
	spec := m.loader.Resolve(language)
	m.tokMu.Lock()
	m.resolved[language] = spec
	m.tokMu.Unlock()
	return spec
}

// tokenizerFor returns the tokenizer spec names, opening it once
func (m *Manager) tokenizerFor(spec ModelSpec) (Tokenizer, error) {
	key := spec.Tokenizer
	if key == "" {
		key = DefaultEncoding
	}
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	if tok, ok := m.tokenizers[key]; ok {
		return tok, nil
	}
	tok, err := m.openTok(spec)
	if err != nil {
		return nil, err
	}
	m.tokenizers[key] = tok
	return tok, nil
}

// Count measures text with the tokenizer of the current language's model.
// Text is counted in words when that tokenizer cannot be opened.
func (m *Manager) Count(text string) int {
	language := m.lang()
	m.tokMu.Lock()
	spec, ok := m.resolved[language]
	m.tokMu.Unlock()
	if !ok {
		spec = m.resolve(language)
	}
	tok, err := m.tokenizerFor(spec)
	if err != nil {
		return len(strings.Fields(text))
	}
	return tok.Count(text)
}

func (m *Manager) acquire(ctx context.Context) error {
	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockTimeout
	}
}

func (m *Manager) tryAcquire() bool {
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manager) release() {
	<-m.sem
}

// Warmup loads the session if it is not loaded. Safe to call repeatedly.
func (m *Manager) Warmup(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return m.ensureLoaded(ctx)
}

// ensureLoaded must be called with sem held
func (m *Manager) ensureLoaded(ctx context.Context) error {
	if m.session != nil {
		return nil
	}
	spec := m.resolve(m.lang())
	start := time.Now()
	tok, err := m.tokenizerFor(spec)
	if err != nil {
		return fmt.Errorf("%w: tokenizer for %s: %v", ErrSessionUnavailable, spec.Name, err)
	}
	session, err := m.loader.Load(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrSessionUnavailable, spec.Name, err)
	}
	m.session = session
	m.tokenizer = tok
	m.spec = spec
	m.lastUsed.Store(time.Now().UnixNano())
	m.logger.Info("embedding session loaded", "model", spec.Name, "runtime", spec.Runtime, "duration", time.Since(start))
	return nil
}

// Embed returns the Dimension-wide vector for text. Input longer than the
// model limit is truncated.
func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	truncated, ids := Truncate(m.tokenizer, text, m.session.MaxTokens())
	out, err := m.session.Run(ctx, NewInputs(truncated, ids))
	m.lastUsed.Store(time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	return ExtractVector(out)
}

// RemoveIfExpired unloads the session when it has been idle longer than the
// TTL. It never waits for the session: if inference is running it reports
// false and the next sweep tries again.
func (m *Manager) RemoveIfExpired(now time.Time) bool {
	if !m.tryAcquire() {
		return false
	}
	defer m.release()

	if m.session == nil {
		return false
	}
	idle := now.Sub(time.Unix(0, m.lastUsed.Load()))
	if idle <= m.ttl {
		return false
	}
	m.closeSession()
	m.logger.Info("embedding session unloaded", "idle", idle)
	return true
}

// Clear unloads the session immediately, waiting for in-flight inference
func (m *Manager) Clear() {
	m.sem <- struct{}{}
	defer m.release()
	m.closeSession()
}

// closeSession must be called with sem held
func (m *Manager) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.logger.Warn("failed to close embedding session", "error", err)
	}
	m.session = nil
	m.tokenizer = nil
	m.spec = ModelSpec{}
}

// SetLanguage switches the content language. A change unloads the current
// session so the next Embed loads the matching model.
func (m *Manager) SetLanguage(language string) {
	m.sem <- struct{}{}
	defer m.release()
	if language == m.lang() {
		return
	}
	m.language.Store(language)
	m.closeSession()
}

// ModelName reports the model Embed uses (or would load) for the current
// language
func (m *Manager) ModelName() string {
	m.sem <- struct{}{}
	defer m.release()
	if m.session != nil {
		return m.spec.Name
	}
	return m.resolve(m.lang()).Name
}

// Loaded reports whether a session is currently held
func (m *Manager) Loaded() bool {
	m.sem <- struct{}{}
	defer m.release()
	return m.session != nil
}

// StartSweeper unloads idle sessions every interval until ctx is done
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.RemoveIfExpired(now)
			}
		}
	}()
}

// CachedEmbedder wraps an Embedder with an LRU cache of query vectors
type CachedEmbedder struct {
	Embedder
	cache *Cache
}

// NewCachedEmbedder wraps e with a cache holding up to size vectors
func NewCachedEmbedder(e Embedder, size int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, cache: NewCache(size)}
}

// Embed returns a cached vector when text was seen before
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}

// Purge drops every cached vector
func (c *CachedEmbedder) Purge() {
	c.cache.Clear()
}
