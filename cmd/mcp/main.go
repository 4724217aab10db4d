// Quantum Forge MCP Server - Exposes the trader reputation API as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/quantumforge/platform/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:        envOrDefault("QUANTUMFORGE_API_URL", "http://localhost:8080"),
		SessionToken:  os.Getenv("QUANTUMFORGE_SESSION_TOKEN"),
		WalletAddress: os.Getenv("QUANTUMFORGE_WALLET_ADDRESS"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
