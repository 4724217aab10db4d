package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Quantum Forge tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("quantumforge", "1.0.0")
	client := NewPlatformClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolSearchTraders, h.HandleSearchTraders)
	s.AddTool(ToolGetTrader, h.HandleGetTrader)
	s.AddTool(ToolListTopTraders, h.HandleListTopTraders)
	s.AddTool(ToolListReviews, h.HandleListReviews)
	s.AddTool(ToolSubmitReview, h.HandleSubmitReview)

	return s
}
