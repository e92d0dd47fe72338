package embedder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/filesift/internal/config"
)

// Local model names. The ONNX models are used when their files are installed
// under the model directory; the hashing models stand in for them otherwise.
const (
	ModelEnglish        = "all-minilm-l6-v2"
	ModelMultilingual   = "paraphrase-multilingual-MiniLM-L12-v2"
	HashingEnglish      = "hashing-english"
	HashingMultilingual = "hashing-multilingual"

	// DefaultMaxTokens is the input limit when a manifest does not give one
	DefaultMaxTokens = 256

	manifestFile  = "model.yaml"
	modelFile     = "model.onnx"
	tokenizerFile = "tokenizer.json"
)

// Session runtimes
const (
	RuntimeONNX    = "onnx"
	RuntimeHashing = "hashing"
	RuntimeRemote  = "remote"
)

// ModelSpec identifies a model, the tokenizer it was trained with and its
// limits. Tokenizer is either a tiktoken encoding name or the path of a
// Hugging Face tokenizer.json.
type ModelSpec struct {
	Name      string `yaml:"name"`
	Runtime   string `yaml:"-"`
	Path      string `yaml:"-"`
	Tokenizer string `yaml:"tokenizer"`
	MaxTokens int    `yaml:"max_tokens"`
	Dimension int    `yaml:"dimension"`
}

// Loader resolves and opens embedding sessions
type Loader interface {
	// Resolve picks the model and tokenizer for a content language
	Resolve(language string) ModelSpec
	Load(ctx context.Context, spec ModelSpec) (Session, error)
}

// NewLoader creates the loader for the configured backend
func NewLoader(cfg *config.Config) (Loader, error) {
	switch cfg.EmbeddingBackend {
	case config.BackendLocal, "":
		l := NewLocalLoader(cfg.ModelDir)
		l.RuntimeLib = cfg.ONNXRuntimeLib
		return l, nil
	case config.BackendOpenAI:
		return &OpenAILoader{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.EmbeddingBaseURL,
			Model:   cfg.EmbeddingModel,
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.EmbeddingBackend)
	}
}

// LoadTokenizer opens the tokenizer named by spec
func LoadTokenizer(spec ModelSpec) (Tokenizer, error) {
	switch {
	case strings.HasSuffix(spec.Tokenizer, ".json"):
		return loadHFTokenizer(spec.Tokenizer)
	case spec.Tokenizer == "", spec.Tokenizer == DefaultEncoding:
		return DefaultTokenizer()
	default:
		return NewTokenizer(spec.Tokenizer)
	}
}

// LocalLoader opens sessions from <modelDir>/<name>/{model.onnx,tokenizer.json}.
// Without those files, or in a build without the onnx tag, it falls back to
// a HashingSession paired with a tiktoken encoding for the language.
type LocalLoader struct {
	modelDir string
	// RuntimeLib is the onnxruntime shared library; empty uses the platform default
	RuntimeLib string
	onnx       bool
}

// NewLocalLoader creates a loader reading models from modelDir
func NewLocalLoader(modelDir string) *LocalLoader {
	return &LocalLoader{modelDir: modelDir, onnx: ONNXAvailable}
}

// Resolve implements Loader
func (l *LocalLoader) Resolve(language string) ModelSpec {
	name, fallback, encoding := ModelEnglish, HashingEnglish, DefaultEncoding
	if language == config.LanguageMultilingual {
		name, fallback, encoding = ModelMultilingual, HashingMultilingual, MultilingualEncoding
	}

	if l.onnx && l.modelDir != "" {
		dir := filepath.Join(l.modelDir, name)
		if fileExists(filepath.Join(dir, modelFile)) && fileExists(filepath.Join(dir, tokenizerFile)) {
			spec := ModelSpec{Name: name, MaxTokens: DefaultMaxTokens, Dimension: Dimension}
			if m, err := ReadManifest(l.modelDir, name); err == nil {
				spec.MaxTokens, spec.Dimension = m.MaxTokens, m.Dimension
			}
			spec.Runtime = RuntimeONNX
			spec.Path = filepath.Join(dir, modelFile)
			spec.Tokenizer = filepath.Join(dir, tokenizerFile)
			return spec
		}
	}
	return ModelSpec{
		Name:      fallback,
		Runtime:   RuntimeHashing,
		Tokenizer: encoding,
		MaxTokens: DefaultMaxTokens,
		Dimension: Dimension,
	}
}

// Load implements Loader
func (l *LocalLoader) Load(ctx context.Context, spec ModelSpec) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Dimension != 0 && spec.Dimension != Dimension {
		return nil, fmt.Errorf("%w: model %s has dimension %d", ErrDimensionMismatch, spec.Name, spec.Dimension)
	}
	switch spec.Runtime {
	case RuntimeONNX:
		return newONNXSession(spec, l.RuntimeLib)
	case RuntimeHashing, "":
		return NewHashingSession(spec.Name, spec.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q for model %s", spec.Runtime, spec.Name)
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// ReadManifest loads the optional <modelDir>/<name>/model.yaml that overrides
// a model's limits
func ReadManifest(modelDir, name string) (ModelSpec, error) {
	if modelDir == "" {
		return ModelSpec{}, fs.ErrNotExist
	}
	data, err := os.ReadFile(filepath.Join(modelDir, name, manifestFile))
	if err != nil {
		return ModelSpec{}, err
	}
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return ModelSpec{}, fmt.Errorf("invalid manifest for %s: %w", name, err)
	}
	if spec.Name == "" {
		spec.Name = name
	}
	if spec.MaxTokens <= 0 {
		spec.MaxTokens = DefaultMaxTokens
	}
	return spec, nil
}

// OpenAILoader opens OpenAISessions. The content language does not change the
// remote model.
type OpenAILoader struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Resolve implements Loader
func (l *OpenAILoader) Resolve(string) ModelSpec {
	model := l.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return ModelSpec{
		Name:      model,
		Runtime:   RuntimeRemote,
		Tokenizer: DefaultEncoding,
		MaxTokens: openAIMaxTokens,
		Dimension: Dimension,
	}
}

// Load implements Loader
func (l *OpenAILoader) Load(_ context.Context, spec ModelSpec) (Session, error) {
	return NewOpenAISession(l.APIKey, l.BaseURL, spec.Name)
}
