package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/internal/config"
)

var flagIndexNow bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the paths kept in sync by serve",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Watch a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		added, err := a.engine.Settings().AddWatched(path, fi.IsDir())
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("Already watching %s\n", path)
		} else {
			fmt.Printf("Watching %s\n", path)
		}

		if flagIndexNow {
			task, err := a.engine.RunIndexing(cmd.Context(), []string{path})
			if task != nil {
				fmt.Printf("Indexed: %s (%d succeeded, %d failed)\n", task.Remark, task.Success, task.Failed)
			}
			return err
		}
		return nil
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Stop watching a path; indexed records are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		removed, err := settings.RemoveWatched(path)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s is not watched", path)
		}
		fmt.Printf("Stopped watching %s\n", path)
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched paths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		st := settings.Get()
		for _, dir := range st.Watcher.Directories {
			fmt.Printf("dir   %s\n", dir)
		}
		for _, file := range st.Watcher.Files {
			fmt.Printf("file  %s\n", file)
		}
		return nil
	},
}

// loadSettings opens the settings file without starting the engine
func loadSettings() (*config.SettingsStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return config.LoadSettings(cfg.SettingsPath)
}

func init() {
	watchAddCmd.Flags().BoolVar(&flagIndexNow, "index", false, "index the path now instead of on the next serve")
	watchCmd.AddCommand(watchAddCmd, watchRemoveCmd, watchListCmd)
	rootCmd.AddCommand(watchCmd)
}
