// Package logging configures the process-wide slog logger.
//
// Components ask for a module logger rather than using slog.Default directly so
// every record carries "module" and "component" attributes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config controls handler selection.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // text, json
	AddSource bool
	Output    io.Writer
}

// NewConfigFromEnv reads FILESIFT_LOG_LEVEL, FILESIFT_LOG_FORMAT and
// FILESIFT_LOG_ADD_SOURCE. Output defaults to stderr because stdout carries
// the MCP stdio transport.
func NewConfigFromEnv() *Config {
	return &Config{
		Level:     getEnvWithDefault("FILESIFT_LOG_LEVEL", "info"),
		Format:    getEnvWithDefault("FILESIFT_LOG_FORMAT", "text"),
		AddSource: getEnvBool("FILESIFT_LOG_ADD_SOURCE", false),
		Output:    os.Stderr,
	}
}

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// Init installs the default logger. A nil cfg reads the environment.
func Init(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = NewConfigFromEnv()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", "filesift"),
	}))

	mu.Lock()
	defaultLogger = logger
	mu.Unlock()

	slog.SetDefault(logger)
	return logger
}

// Logger returns the default logger, initializing it from the environment on
// first use.
func Logger() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Init(nil)
	}
	return l
}

// NewModuleLogger returns a logger tagged with module and component.
func NewModuleLogger(module, component string) *slog.Logger {
	return Logger().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
