package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/searcher"
)

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// startIndexingTool returns the tool definition for start_indexing
func startIndexingTool() mcp.Tool {
	return mcp.NewTool("start_indexing",
		mcp.WithDescription("Scan and index files and directories so they become searchable. Rejected while another run is in flight."),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Absolute paths of files or directories to index"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("wait",
			mcp.Description("If true, block until the run finishes and return the final task"),
			mcp.DefaultBool(false),
		),
	)
}

// stopIndexingTool returns the tool definition for stop_indexing
func stopIndexingTool() mcp.Tool {
	return mcp.NewTool("stop_indexing",
		mcp.WithDescription("Ask the indexing run in flight to stop at the next file boundary"),
	)
}

// indexingStatusTool returns the tool definition for indexing_status
func indexingStatusTool() mcp.Tool {
	return mcp.NewTool("indexing_status",
		mcp.WithDescription("Report run flags, live per-category progress and the latest indexing task"),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search indexed files by path keywords, by meaning, or both. The mode is picked from the query unless given."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Keywords, a file name or a natural language description"),
		),
		mcp.WithString("mode",
			mcp.Description("Search strategy: auto (by query), path (keywords in paths), semantic (embeddings) or hybrid (both, fused)"),
			mcp.Enum(
				string(searcher.SearchModeAuto),
				string(searcher.SearchModePath),
				string(searcher.SearchModeSemantic),
				string(searcher.SearchModeHybrid),
			),
			mcp.DefaultString(string(searcher.SearchModeAuto)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (1-100)"),
			mcp.DefaultNumber(20),
			mcp.Min(1),
			mcp.Max(100),
		),
	)
}

// addWatchedPathTool returns the tool definition for add_watched_path
func addWatchedPathTool() mcp.Tool {
	return mcp.NewTool("add_watched_path",
		mcp.WithDescription("Keep a file or directory in sync with the index and index it in the background"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the file or directory to watch"),
		),
	)
}

// removeWatchedPathTool returns the tool definition for remove_watched_path
func removeWatchedPathTool() mcp.Tool {
	return mcp.NewTool("remove_watched_path",
		mcp.WithDescription("Stop watching a path. Its indexed records are kept."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path previously added with add_watched_path"),
		),
	)
}

// setContentLanguageTool returns the tool definition for set_content_language
func setContentLanguageTool() mcp.Tool {
	return mcp.NewTool("set_content_language",
		mcp.WithDescription("Switch the embedding model language. Existing vectors become stale until files are re-indexed."),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Enum(config.LanguageEnglish, config.LanguageMultilingual),
		),
	)
}
