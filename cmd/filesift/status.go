package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index size and the latest indexing task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		st, err := a.engine.Status(cmd.Context())
		if err != nil {
			return err
		}
		files, err := a.store.CountFiles(cmd.Context())
		if err != nil {
			return err
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Printf("Database:        %s (%s, vector extension %v)\n", a.cfg.DBPath, storage.BuildMode, storage.VectorExtensionAvailable)
		fmt.Printf("Files indexed:   %d\n", files)
		fmt.Printf("Embedding model: %s\n", st.EmbeddingModel)
		if st.ModelChanged {
			fmt.Println("                 (changed since the last run; re-index to refresh vectors)")
		}
		if t := st.LatestTask; t != nil {
			fmt.Printf("Latest task:     #%d %s, %s\n", t.ID, t.Status, t.Remark)
			fmt.Printf("                 %d total, %d succeeded, %d failed, %d skipped in %s\n",
				t.Total, t.Success, t.Failed, t.Skipped, t.Duration)
		} else {
			fmt.Println("Latest task:     none")
		}
		return nil
	},
}

var languageCmd = &cobra.Command{
	Use:       "language <english|multilingual>",
	Short:     "Set the content language used to pick the embedding model",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{config.LanguageEnglish, config.LanguageMultilingual},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cobra.OnlyValidArgs(cmd, args); err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.engine.SetContentLanguage(args[0]); err != nil {
			return err
		}
		fmt.Printf("Content language set to %s. Run index again to refresh existing vectors.\n", args[0])
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FileSift\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagJSON, "json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd, languageCmd, versionCmd)
}
