// Package toolserver exposes sessions to MCP clients over stdio.
package toolserver

import (
	"context"

	"clickchain/application/commands/bus"
	querybus "clickchain/application/queries/bus"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Server wraps an MCP server whose tools dispatch onto the command and query buses
type Server struct {
	mcpServer *mcp.Server
	commands  *bus.CommandBus
	queries   *querybus.QueryBus
	logger    *zap.Logger
}

// New creates a server with every tool registered
func New(commands *bus.CommandBus, queries *querybus.QueryBus, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: "clickchain", Version: version}, nil),
		commands:  commands,
		queries:   queries,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Run serves on stdin/stdout until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
