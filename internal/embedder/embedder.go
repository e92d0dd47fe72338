package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText          = errors.New("text cannot be empty")
	ErrSessionUnavailable = errors.New("embedding session unavailable")
	ErrUnexpectedShape    = errors.New("unexpected output shape")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrLockTimeout        = errors.New("timed out waiting for embedding session")
	ErrProviderFailed     = errors.New("embedding provider failed")
	ErrRuntimeUnavailable = errors.New("onnx runtime not available in this build")
)

// Dimension is the width of every vector produced by this package
const Dimension = 384

// Inputs is what a Session consumes for one text. Token-based sessions use
// the id slices; remote sessions use Text.
type Inputs struct {
	Text          string
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// NewInputs builds inputs for text from its token ids, with a full attention
// mask and zero token-type ids
func NewInputs(text string, ids []int) Inputs {
	in := Inputs{
		Text:          text,
		InputIDs:      make([]int64, len(ids)),
		AttentionMask: make([]int64, len(ids)),
		TokenTypeIDs:  make([]int64, len(ids)),
	}
	for i, id := range ids {
		in.InputIDs[i] = int64(id)
		in.AttentionMask[i] = 1
	}
	return in
}

// Tensor is a dense float32 output with its shape
type Tensor struct {
	Shape []int
	Data  []float32
}

// Session runs one embedding model
type Session interface {
	Run(ctx context.Context, in Inputs) (Tensor, error)
	// MaxTokens is the longest input the model accepts
	MaxTokens() int
	Close() error
}

// ExtractVector picks the sentence vector out of a model output:
//
//	[1, seq, dim] -> hidden state of the last token
//	[1, dim]      -> row 0
//	[dim]         -> as-is
//
// dim must equal Dimension.
func ExtractVector(t Tensor) ([]float32, error) {
	var start, dim int
	switch len(t.Shape) {
	case 3:
		if t.Shape[0] != 1 || t.Shape[1] < 1 {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, t.Shape)
		}
		dim = t.Shape[2]
		start = (t.Shape[1] - 1) * dim
	case 2:
		if t.Shape[0] != 1 {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, t.Shape)
		}
		dim = t.Shape[1]
	case 1:
		dim = t.Shape[0]
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, t.Shape)
	}

	if dim != Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, dim, Dimension)
	}
	if start+dim > len(t.Data) {
		return nil, fmt.Errorf("%w: shape %v with %d values", ErrUnexpectedShape, t.Shape, len(t.Data))
	}

	vector := make([]float32, dim)
	copy(vector, t.Data[start:start+dim])
	return vector, nil
}

// Cache provides in-memory LRU caching of query vectors by text hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new vector cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 1000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, []float32](1000)
	}
	return &Cache{
		cache: cache,
	}
}

// Get returns a copy of a cached vector so callers cannot mutate the entry
func (c *Cache) Get(text string) ([]float32, bool) {
	v, ok := c.cache.Get(ComputeHash(text))
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector in cache with automatic LRU eviction
func (c *Cache) Set(text string, v []float32) {
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(ComputeHash(text), stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
