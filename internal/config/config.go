// Package config loads process configuration from the environment and
// persists user settings as YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Embedding backends.
const (
	BackendLocal  = "local"
	BackendOpenAI = "openai"
)

// Config is the process-level configuration. It is read once at startup.
type Config struct {
	Home         string
	DBPath       string
	ModelDir     string
	SettingsPath string

	EmbeddingBackend string
	EmbeddingModel   string
	EmbeddingBaseURL string
	OpenAIAPIKey     string
	ONNXRuntimeLib   string
}

// Load reads an optional .env file from the working directory and then the
// environment:
//
//	FILESIFT_HOME               default ~/.filesift
//	FILESIFT_DB_PATH            default $FILESIFT_HOME/filesift.db
//	FILESIFT_MODEL_DIR          default $FILESIFT_HOME/models
//	FILESIFT_SETTINGS_PATH      default $FILESIFT_HOME/settings.yaml
//	FILESIFT_EMBEDDING_BACKEND  local (default) or openai
//	FILESIFT_EMBEDDING_MODEL    remote model name for the openai backend
//	FILESIFT_EMBEDDING_BASE_URL optional OpenAI-compatible endpoint
//	OPENAI_API_KEY              key for the openai backend
//	FILESIFT_ONNXRUNTIME_LIB    onnxruntime shared library (builds with -tags onnx)
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	home := os.Getenv("FILESIFT_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".filesift")
	}

	cfg := &Config{
		Home:             home,
		DBPath:           getEnvWithDefault("FILESIFT_DB_PATH", filepath.Join(home, "filesift.db")),
		ModelDir:         getEnvWithDefault("FILESIFT_MODEL_DIR", filepath.Join(home, "models")),
		SettingsPath:     getEnvWithDefault("FILESIFT_SETTINGS_PATH", filepath.Join(home, "settings.yaml")),
		EmbeddingBackend: getEnvWithDefault("FILESIFT_EMBEDDING_BACKEND", BackendLocal),
		EmbeddingModel:   getEnvWithDefault("FILESIFT_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBaseURL: os.Getenv("FILESIFT_EMBEDDING_BASE_URL"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ONNXRuntimeLib:   os.Getenv("FILESIFT_ONNXRUNTIME_LIB"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selection.
func (c *Config) Validate() error {
	switch c.EmbeddingBackend {
	case BackendLocal:
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("embedding backend %q requires OPENAI_API_KEY", c.EmbeddingBackend)
		}
	default:
		return fmt.Errorf("unknown embedding backend %q", c.EmbeddingBackend)
	}
	return nil
}

// EnsureDirs creates the directories the configured paths live in.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Home, filepath.Dir(c.DBPath), c.ModelDir, filepath.Dir(c.SettingsPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
