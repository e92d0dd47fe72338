package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/embedder"
	"github.com/dshills/filesift/internal/engine"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:           "filesift",
	Short:         "Local file indexing and search",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.NewConfigFromEnv()
		if flagLogLevel != "" {
			logCfg.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			logCfg.Format = flagLogFormat
		}
		logging.Init(logCfg)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default $FILESIFT_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text or json (default $FILESIFT_LOG_FORMAT or text)")
}

// app is an opened engine with the resources it owns
type app struct {
	cfg    *config.Config
	store  *storage.SQLiteStorage
	engine *engine.Engine
	logger *slog.Logger
}

// openApp loads configuration, opens the registry and starts the engine.
// The watcher runs only when watch is set.
func openApp(ctx context.Context, watch bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	logger := logging.NewModuleLogger("filesift", "cli")

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	loader, err := embedder.NewLoader(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	manager := embedder.NewManager(embedder.ManagerConfig{
		Loader:   loader,
		Language: settings.Get().ContentLanguage,
	})

	eng, err := engine.New(engine.Config{
		Store:     store,
		Settings:  settings,
		Embedding: manager,
		Counter:   manager,
		Watch:     watch,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		_ = store.Close()
		return nil, err
	}

	logger.Debug("engine opened",
		"db", cfg.DBPath,
		"backend", cfg.EmbeddingBackend,
		"build_mode", storage.BuildMode,
		"vector_extension", storage.VectorExtensionAvailable)
	return &app{cfg: cfg, store: store, engine: eng, logger: logger}, nil
}

// Close stops the engine and closes the registry
func (a *app) Close() error {
	err := a.engine.Close()
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}
