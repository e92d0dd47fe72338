package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/internal/mcp"
	"github.com/dshills/filesift/internal/storage"
)

var flagNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio and keep watched paths in sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := openApp(ctx, !flagNoWatch)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		a.logger.Info("FileSift MCP server starting",
			"version", version,
			"build_mode", storage.BuildMode,
			"driver", storage.DriverName,
			"vector_extension", storage.VectorExtensionAvailable)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		server := mcp.NewServer(a.engine, a.logger.With("component", "mcp"))
		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Serve(ctx)
		}()

		select {
		case sig := <-sigChan:
			a.logger.Info("shutting down", "signal", sig.String())
			cancel()
			return nil
		case err := <-errChan:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&flagNoWatch, "no-watch", false, "do not watch the configured directories")
	rootCmd.AddCommand(serveCmd)
}
