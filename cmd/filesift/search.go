package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/filesift/internal/searcher"
)

var (
	flagMode  string
	flagLimit int
	flagJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search indexed files by path keywords or meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := searcher.ParseSearchMode(flagMode)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		resp, err := a.engine.Search(cmd.Context(), searcher.SearchRequest{
			Query: strings.Join(args, " "),
			Mode:  mode,
			Limit: flagLimit,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		fmt.Printf("%d result(s), intent %s, %s\n\n", resp.TotalResults, resp.Intent, resp.Duration)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tSCORE\tSOURCE\tPATH")
		for i, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\n", i+1, r.Score, r.Source, r.File.Path)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVarP(&flagMode, "mode", "m", string(searcher.SearchModeAuto), "search mode: auto, path, semantic or hybrid")
	searchCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "maximum number of results")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print the response as JSON")
	rootCmd.AddCommand(searchCmd)
}
