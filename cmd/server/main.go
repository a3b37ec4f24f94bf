// Package main provides the entry point for the episodic memory engine's
// MCP server.
//
// The server is designed to be spawned as a child process by an MCP client
// and communicates via stdio using the Model Context Protocol, exposing the
// episode/pattern/relationship/sandbox tool surface described by
// SPEC_FULL.md §6.
//
// Environment variables:
//   - DEBUG: set to "true" to enable debug logging
//   - EME_STORAGE_TYPE, EME_STORAGE_SQLITE_PATH, EME_STORAGE_POSTGRES_DSN
//   - EME_EMBEDDINGS_PROVIDER, EME_EMBEDDINGS_MODEL, VOYAGE_API_KEY
//   - EME_SANDBOX_ROUTER_WASM_RATIO, EME_SANDBOX_ROUTER_INTELLIGENT_ROUTING
//   - EME_AUDIT_NATS_URL
//   - EME_CACHE_PRESET
package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Starting episodic memory engine server in debug mode...")
	}

	components, err := InitializeServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer func() {
		if err := components.Cleanup(); err != nil {
			log.Printf("Warning: cleanup failed: %v", err)
		}
	}()

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    components.Config.Server.Name,
		Version: components.Config.Server.Version,
	}, nil)
	log.Println("Created MCP server")

	components.Server.RegisterTools(mcpServer)
	log.Println("Registered episodic memory tools")

	transport := &mcp.StdioTransport{}
	log.Println("Created stdio transport")

	ctx := context.Background()
	log.Println("Starting MCP server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
