// Package server implements the MCP (Model Context Protocol) server for the
// episodic memory engine: every tool in SPEC_FULL.md §6's protocol table,
// registered against a github.com/modelcontextprotocol/go-sdk/mcp.Server.
//
// Grounded on the teacher's internal/server/server.go: UnifiedServer's
// "storage + modes + validator" composition root and its RegisterTools
// method registering each tool via mcp.AddTool(mcpServer, &mcp.Tool{...},
// s.handleXxx) are generalized here to Server's "store + relationship
// manager + pattern miner + sandbox router + rate limiter + audit sink"
// composition, and its handler methods use the teacher's
// internal/server/handlers/decision.go directly-typed handler shape
// (func(ctx, *mcp.CallToolRequest, TReq) (*mcp.CallToolResult, *TResp,
// error) with the SDK itself doing request unmarshaling) rather than the
// stale episodic.go's manual map[string]interface{} round-tripping.
package server

import (
	"math/rand"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/audit"
	"unified-thinking/internal/embeddings"
	"unified-thinking/internal/memory"
	"unified-thinking/internal/pattern"
	"unified-thinking/internal/ratelimit"
	"unified-thinking/internal/relationship"
	"unified-thinking/internal/sandbox"
	"unified-thinking/internal/storage"
)

// Server wires the episodic memory engine's components behind the MCP tool
// protocol: memory.Store is the sole episode mutator, relationship.Manager
// and pattern.Miner are reached through it, and sandbox.Router,
// ratelimit.Limiter, and audit.Sink are cross-cutting concerns every write
// tool passes through.
type Server struct {
	store    *memory.Store
	relMgr   *relationship.Manager
	patMiner *pattern.Miner
	strg     storage.Storage
	router   *sandbox.Router
	limiter  *ratelimit.Limiter
	auditLog audit.Sink
	embedder embeddings.Embedder

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New constructs a Server. embedder may be nil (token-Jaccard retrieval
// fallback); router/limiter/auditLog must not be nil — callers pass
// sandbox.NewDefaultRouter, ratelimit.New, and either audit.NoopSink{} or a
// *audit.NATSSink.
func New(store *memory.Store, strg storage.Storage, router *sandbox.Router, limiter *ratelimit.Limiter, auditLog audit.Sink, embedder embeddings.Embedder, seed int64) *Server {
	return &Server{
		store:    store,
		relMgr:   store.Relationships(),
		patMiner: store.Patterns(),
		strg:     strg,
		router:   router,
		limiter:  limiter,
		auditLog: auditLog,
		embedder: embedder,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// RegisterTools registers every SPEC_FULL.md §6 tool against mcpServer.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "query_memory",
		Description: "Query relevant episodes by domain, task type, and free-text similarity, with sort and field projection",
	}, s.handleQueryMemory)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "create_episode",
		Description: "Start a new open episode",
	}, s.handleCreateEpisode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "add_episode_step",
		Description: "Append one execution step to an open episode",
	}, s.handleAddEpisodeStep)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "complete_episode",
		Description: "Finalize an episode's outcome and run the learning cycle",
	}, s.handleCompleteEpisode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_episode",
		Description: "Fetch a single episode by id",
	}, s.handleGetEpisode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "delete_episode",
		Description: "Delete an episode and its index entry",
	}, s.handleDeleteEpisode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "update_episode",
		Description: "Patch an open episode's description or context",
	}, s.handleUpdateEpisode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_episode_timeline",
		Description: "Return an episode's ordered execution steps",
	}, s.handleGetEpisodeTimeline)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "bulk_episodes",
		Description: "Resolve a set of episode ids in one call",
	}, s.handleBulkEpisodes)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "analyze_patterns",
		Description: "Rank mined patterns for a task type by confidence and minimum success rate",
	}, s.handleAnalyzePatterns)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "search_patterns",
		Description: "Search mined patterns by domain, tags, and minimum relevance",
	}, s.handleSearchPatterns)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "recommend_patterns",
		Description: "Thompson-sample the highest-expected-value patterns for a domain",
	}, s.handleRecommendPatterns)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "add_relationship",
		Description: "Add a typed relationship edge between two episodes",
	}, s.handleAddRelationship)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "remove_relationship",
		Description: "Remove a relationship edge by id",
	}, s.handleRemoveRelationship)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_relationships",
		Description: "List every relationship edge touching an episode",
	}, s.handleListRelationships)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "find_related",
		Description: "Find episodes related to one, filtered by type/direction/priority",
	}, s.handleFindRelated)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "dependency_graph",
		Description: "Return the dependency subgraph rooted at an episode, to a bounded depth",
	}, s.handleDependencyGraph)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "validate_cycles",
		Description: "Check whether the acyclic-typed relationship subgraph currently contains a cycle",
	}, s.handleValidateCycles)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "topological_sort",
		Description: "Return a topological order over the acyclic-typed relationship subgraph",
	}, s.handleTopologicalSort)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "execute_agent_code",
		Description: "Execute agent-authored code in the sandboxed process/WASM router",
	}, s.handleExecuteAgentCode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "configure_embeddings",
		Description: "Report the active embedding provider/model configuration",
	}, s.handleConfigureEmbeddings)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "query_semantic_memory",
		Description: "Query episodes by embedding-vector similarity to free text",
	}, s.handleQuerySemanticMemory)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "test_embeddings",
		Description: "Round-trip a sample embedding call to verify the configured provider is reachable",
	}, s.handleTestEmbeddings)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "health_check",
		Description: "Report storage, sandbox, and audit subsystem health",
	}, s.handleHealthCheck)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_metrics",
		Description: "Return storage, cache, and sandbox-routing operational counters",
	}, s.handleGetMetrics)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "quality_metrics",
		Description: "Detect reward anomalies and changepoints across recent episodes",
	}, s.handleQualityMetrics)
}
