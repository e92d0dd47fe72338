package embedder

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultEncoding pairs with the english hashing model and remote models
	DefaultEncoding = "cl100k_base"
	// MultilingualEncoding has the larger vocabulary used for non-English text
	MultilingualEncoding = "o200k_base"
)

func init() {
	// BPE files ship with the binary; never fetch them at runtime
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Tokenizer converts between text and token ids
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	Count(text string) int
}

// BPETokenizer is a Tokenizer backed by tiktoken
type BPETokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var (
	defaultTokenizer     *BPETokenizer
	defaultTokenizerErr  error
	defaultTokenizerOnce sync.Once
)

// NewTokenizer loads the named encoding
func NewTokenizer(encoding string) (*BPETokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", encoding, err)
	}
	return &BPETokenizer{enc: enc}, nil
}

// DefaultTokenizer returns a shared cl100k_base tokenizer, loading it once
func DefaultTokenizer() (*BPETokenizer, error) {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer, defaultTokenizerErr = NewTokenizer(DefaultEncoding)
	})
	return defaultTokenizer, defaultTokenizerErr
}

// Encode returns the token ids of text. Special-token text is encoded as
// ordinary text.
func (t *BPETokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(text, nil, nil)
}

// Decode returns the text for ids
func (t *BPETokenizer) Decode(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Decode(ids)
}

// Count returns the number of tokens in text
func (t *BPETokenizer) Count(text string) int {
	return len(t.Encode(text))
}

// Truncate returns text cut to at most maxTokens tokens, with its ids
func Truncate(tok Tokenizer, text string, maxTokens int) (string, []int) {
	ids := tok.Encode(text)
	if maxTokens <= 0 || len(ids) <= maxTokens {
		return text, ids
	}
	ids = ids[:maxTokens]
	return tok.Decode(ids), ids
}
