package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/filesift/internal/engine"
	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "filesift"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// ProgressMethod is the notification method carrying indexing progress
	ProgressMethod = "notifications/filesift/progress"
)

// Server wraps the MCP server with the engine it controls
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates a new MCP server for eng. The engine must be started by
// the caller; the server never closes it.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewModuleLogger("mcp", "server")
	}
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		engine: eng,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown. Indexing
// progress is forwarded to connected clients as notifications.
func (s *Server) Serve(ctx context.Context) error {
	events, unsubscribe := s.engine.Events().Subscribe(0)
	defer unsubscribe()
	go s.forwardProgress(ctx, events)

	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) forwardProgress(ctx context.Context, events <-chan types.ProgressEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mcp.SendNotificationToAllClients(ProgressMethod, map[string]any{
				"kind":    string(ev.Kind),
				"task_id": ev.TaskID,
				"msg":     ev.Message,
			})
		}
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(startIndexingTool(), s.handleStartIndexing)
	s.mcp.AddTool(stopIndexingTool(), s.handleStopIndexing)
	s.mcp.AddTool(indexingStatusTool(), s.handleIndexingStatus)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(addWatchedPathTool(), s.handleAddWatchedPath)
	s.mcp.AddTool(removeWatchedPathTool(), s.handleRemoveWatchedPath)
	s.mcp.AddTool(setContentLanguageTool(), s.handleSetContentLanguage)
}
