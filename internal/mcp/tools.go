package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/internal/indexer"
	"github.com/dshills/filesift/internal/searcher"
	"github.com/dshills/filesift/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Path does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// handleStartIndexing handles the start_indexing tool invocation
func (s *Server) handleStartIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	paths, err := getPaths(args, "paths")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": err.Error(),
		})
	}
	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return nil, pathError("paths", p, err)
		}
	}

	if !getBoolDefault(args, "wait", false) {
		task, err := s.engine.StartIndexing(ctx, paths)
		if err != nil {
			return nil, runError(err)
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"started": true,
			"task":    taskJSON(task),
		})), nil
	}

	task, err := s.engine.RunIndexing(ctx, paths)
	if task == nil {
		return nil, runError(err)
	}
	response := map[string]interface{}{
		"started": true,
		"task":    taskJSON(task),
	}
	if err != nil {
		// The run finished; media was left out
		response["warning"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStopIndexing handles the stop_indexing tool invocation
func (s *Server) handleStopIndexing(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stopping := s.engine.StopIndexing()
	response := map[string]interface{}{"stopping": stopping}
	if !stopping {
		response["message"] = "No indexing run in progress."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexingStatus handles the indexing_status tool invocation
func (s *Server) handleIndexingStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.engine.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"scanning":       st.Scanning,
		"indexing":       st.Indexing,
		"stop_requested": st.StopRequested,
		"scanned":        st.Scanned,
		"progress": map[string]interface{}{
			"document": progressJSON(st.Document),
			"image":    progressJSON(st.Image),
			"audio":    progressJSON(st.Audio),
			"total":    progressJSON(st.Totals),
		},
		"cached_paths":    st.CachedPaths,
		"embedding_model": st.EmbeddingModel,
		"model_changed":   st.ModelChanged,
	}
	if st.LatestTask != nil {
		response["latest_task"] = taskJSON(st.LatestTask)
	}
	if st.ModelChanged {
		response["message"] = "The embedding model changed since the last run. Re-index to refresh semantic search."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseSearchMode(getStringDefault(args, "mode", string(searcher.SearchModeAuto)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"reason":  err.Error(),
			"allowed": []string{"auto", "path", "semantic", "hybrid"},
		})
	}

	resp, err := s.engine.Search(ctx, searcher.SearchRequest{Query: query, Mode: mode, Limit: limit, UseCache: true})
	if errors.Is(err, searcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be blank", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		results = append(results, resultJSON(i+1, r))
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"mode":        string(resp.Mode),
		"intent":      resp.Intent.String(),
		"total":       resp.TotalResults,
		"duration_ms": resp.Duration.Milliseconds(),
		"cache_hit":   resp.CacheHit,
		"results":     results,
	})), nil
}

// handleAddWatchedPath handles the add_watched_path tool invocation
func (s *Server) handleAddWatchedPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}
	if err := validatePath(path); err != nil {
		return nil, pathError("path", path, err)
	}
	if err := s.engine.AddWatchedPath(ctx, path); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to watch path", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"watching": true,
		"path":     path,
	})), nil
}

// handleRemoveWatchedPath handles the remove_watched_path tool invocation
func (s *Server) handleRemoveWatchedPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		return nil, pathError("path", path, ErrPathNotAbsolute)
	}
	if err := s.engine.RemoveWatchedPath(ctx, path); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to unwatch path", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"watching": false,
		"path":     path,
	})), nil
}

// handleSetContentLanguage handles the set_content_language tool invocation
func (s *Server) handleSetContentLanguage(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	language := getStringDefault(args, "language", "")
	if language != config.LanguageEnglish && language != config.LanguageMultilingual {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid language", map[string]interface{}{
			"param":   "language",
			"value":   language,
			"allowed": []string{config.LanguageEnglish, config.LanguageMultilingual},
		})
	}
	if err := s.engine.SetContentLanguage(language); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to update settings", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"content_language": language,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// runError maps engine run-control errors to MCP errors
func runError(err error) error {
	switch {
	case errors.Is(err, types.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, types.ErrEmptyPaths):
		return newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing or empty",
		})
	default:
		return newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func pathError(param, path string, err error) error {
	code := ErrorCodeInvalidParams
	if errors.Is(err, ErrPathNotFound) {
		code = ErrorCodePathNotFound
	}
	return newMCPError(code, "invalid path", map[string]interface{}{
		"param":  param,
		"path":   path,
		"reason": err.Error(),
	})
}

// arguments returns the tool call arguments as a map. A call without
// arguments yields an empty map.
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	switch args := request.Params.Arguments.(type) {
	case map[string]interface{}:
		return args, nil
	case nil:
		return map[string]interface{}{}, nil
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
}

func requirePath(request mcp.CallToolRequest) (string, error) {
	args, err := arguments(request)
	if err != nil {
		return "", err
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	return path, nil
}

// validatePath checks if a path is absolute, exists and is readable
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return ErrPathNotReadable
		}
		_ = f.Close()
	}
	return nil
}

func taskJSON(t *types.IndexingTask) map[string]interface{} {
	m := map[string]interface{}{
		"id":              t.ID,
		"paths":           t.Paths,
		"embedding_model": t.EmbeddingModel,
		"status":          string(t.Status),
		"start_time":      t.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		"duration_ms":     t.Duration.Milliseconds(),
		"total":           t.Total,
		"processed":       t.Processed,
		"success":         t.Success,
		"failed":          t.Failed,
		"skipped":         t.Skipped,
	}
	if !t.EndTime.IsZero() {
		m["end_time"] = t.EndTime.Format("2006-01-02T15:04:05Z07:00")
	}
	if t.Remark != "" {
		m["remark"] = t.Remark
	}
	return m
}

func progressJSON(p indexer.ProgressSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"total":       p.Total,
		"processed":   p.Processed,
		"success":     p.Success,
		"failed":      p.Failed,
		"skipped":     p.Skipped,
		"duration_ms": p.Duration.Milliseconds(),
	}
}

func resultJSON(rank int, r types.SearchResult) map[string]interface{} {
	m := map[string]interface{}{
		"rank":     rank,
		"score":    r.Score,
		"source":   string(r.Source),
		"path":     r.File.Path,
		"name":     r.File.Name,
		"category": r.File.Category.String(),
		"size":     r.File.Size,
	}
	if !r.File.FileModifiedAt.IsZero() {
		m["modified_at"] = r.File.FileModifiedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if len(r.MatchedKeywords) > 0 {
		m["matched_keywords"] = r.MatchedKeywords
	}
	if r.Source != types.SourcePath {
		m["distance"] = r.Distance
	}
	if len(r.MatchedChunkIDs) > 0 {
		m["matched_chunk_ids"] = r.MatchedChunkIDs
	}
	return m
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getPaths extracts a non-empty string array parameter
func getPaths(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, errors.New("missing or empty")
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		p, ok := v.(string)
		if !ok || p == "" {
			return nil, errors.New("every path must be a non-empty string")
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
