package extractor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dshills/filesift/pkg/types"
)

// MaxDocumentChars bounds how much text is loaded from one document
const MaxDocumentChars = 30000

// DocumentLoader extracts text from a family of document formats
type DocumentLoader interface {
	// Extensions lists the normalized extensions this loader handles
	Extensions() []string
	Load(path string) (string, error)
	// LoadBounded stops after roughly maxChars characters
	LoadBounded(path string, maxChars int) (string, error)
	LoadReader(r io.Reader, maxChars int) (string, error)
}

// ImageAnalyzer produces a text description of an image
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, model, path string) (string, error)
}

// AudioAnalyzer transcribes an audio file
type AudioAnalyzer interface {
	AnalyzeAudio(ctx context.Context, model, path string) (string, error)
}

// Registry maps file extensions to document loaders
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader
}

// NewRegistry creates a registry holding loaders. Later loaders win on
// overlapping extensions.
func NewRegistry(loaders ...DocumentLoader) *Registry {
	r := &Registry{loaders: make(map[string]DocumentLoader)}
	for _, l := range loaders {
		r.Register(l)
	}
	return r
}

// DefaultRegistry holds the built-in loaders
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlainTextLoader())
}

// Register adds l for each of its extensions
func (r *Registry) Register(l DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range l.Extensions() {
		r.loaders[types.NormalizeExt(ext)] = l
	}
}

// Lookup returns the loader for ext
func (r *Registry) Lookup(ext string) (DocumentLoader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[types.NormalizeExt(ext)]
	return l, ok
}

// Extensions lists every registered extension, sorted
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// LoadBounded loads path with the loader registered for its extension
func (r *Registry) LoadBounded(path string, maxChars int) (string, error) {
	l, ok := r.Lookup(types.ExtOf(path))
	if !ok {
		return "", fmt.Errorf("%w: no loader for %q", types.ErrUnsupported, types.ExtOf(path))
	}
	return l.LoadBounded(path, maxChars)
}
