// Package mcp implements the Model Context Protocol (MCP) server for FileSift.
//
// The server is a thin run-control surface over engine.Engine. It exposes:
//   - start_indexing: Scan and index paths, in the background or synchronously
//   - stop_indexing: Ask the run in flight to stop
//   - indexing_status: Run flags, live progress and the latest task
//   - search: Path, semantic or hybrid file search
//   - add_watched_path / remove_watched_path: Keep roots in sync with the index
//   - set_content_language: Switch the embedding model language
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Indexing progress events are pushed to connected clients as
// notifications/filesift/progress with kind, task_id and msg.
//
// # Tool: start_indexing
//
//	Request:
//	{
//	  "name": "start_indexing",
//	  "arguments": {"paths": ["/home/me/Documents"], "wait": false}
//	}
//
//	Response:
//	{
//	  "started": true,
//	  "task": {"id": 3, "status": "running", "embedding_model": "bge-small-en-v1.5", ...}
//	}
//
// With "wait": true the response carries the finished task. A platform
// without an API key still completes the run; the message is returned as
// "warning".
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {"query": "notes about the spring budget", "mode": "auto", "limit": 20}
//	}
//
//	Response:
//	{
//	  "mode": "auto",
//	  "intent": "hybrid",
//	  "results": [
//	    {"rank": 1, "score": 0.71, "source": "hybrid", "path": "/home/me/budget.md", ...}
//	  ]
//	}
//
// # Error Handling
//
// Handlers return *MCPError values with JSON-RPC codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Path does not exist
//   - -32002: Indexing in progress
//   - -32004: Empty query
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "filesift": {
//	      "command": "/usr/local/bin/filesift",
//	      "args": ["serve"]
//	    }
//	  }
//	}
//
// The server logs to stderr; stdout is reserved for the protocol.
package mcp
