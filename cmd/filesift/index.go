package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/pkg/types"
)

var flagQuiet bool

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Scan and index files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := make([]string, 0, len(args))
		for _, arg := range args {
			p, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			paths = append(paths, p)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if changed, err := a.engine.EmbeddingModelChanged(ctx); err == nil && changed {
			fmt.Fprintln(os.Stderr, "Note: the embedding model changed since the last run; unchanged files keep their old vectors.")
		}

		events, unsubscribe := a.engine.Events().Subscribe(0)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if flagQuiet {
					continue
				}
				switch ev.Kind {
				case types.ProgressScan:
					fmt.Fprintln(os.Stderr, "Scanning...")
				case types.ProgressEmbed:
					fmt.Fprintf(os.Stderr, "  %s\n", ev.Message)
				case types.ProgressStop:
					fmt.Fprintln(os.Stderr, "Stopping...")
				}
			}
		}()

		fmt.Printf("Indexing %d path(s)...\n", len(paths))
		start := time.Now()
		task, runErr := a.engine.RunIndexing(ctx, paths)
		unsubscribe()
		<-done

		if task == nil {
			return runErr
		}
		fmt.Printf("\n%s in %s: %s\n", task.Status, time.Since(start).Round(time.Millisecond), task.Remark)
		fmt.Printf("  Files:  %d total, %d succeeded, %d failed, %d skipped\n",
			task.Total, task.Success, task.Failed, task.Skipped)
		fmt.Printf("  Model:  %s\n", task.EmbeddingModel)

		if errors.Is(runErr, types.ErrPlatformMissingAPIKey) {
			// Documents were indexed; media needs a key
			return nil
		}
		return runErr
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "do not print per-file progress")
	rootCmd.AddCommand(indexCmd)
}
