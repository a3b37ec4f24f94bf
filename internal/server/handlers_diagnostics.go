package server

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/analytics"
	"unified-thinking/internal/errors"
	"unified-thinking/internal/sandbox"
	"unified-thinking/internal/types"
)

// ---------------------------------------------------------------------
// configure_embeddings
// ---------------------------------------------------------------------

type ConfigureEmbeddingsResponse struct {
	Configured bool   `json:"configured"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Dimension  int    `json:"dimension,omitempty"`
}

// handleConfigureEmbeddings reports the active embedding provider rather
// than reconfiguring it live — the provider is wired once at startup from
// config.EmbeddingsConfig, and swapping it mid-process would invalidate
// every cached similarity score.
func (s *Server) handleConfigureEmbeddings(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *ConfigureEmbeddingsResponse, error) {
	resp := &ConfigureEmbeddingsResponse{Configured: s.embedder != nil}
	if s.embedder != nil {
		resp.Provider = s.embedder.Provider()
		resp.Model = s.embedder.Model()
		resp.Dimension = s.embedder.Dimension()
	}
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// query_semantic_memory
// ---------------------------------------------------------------------

type QuerySemanticMemoryRequest struct {
	Query  string `json:"query"`
	Domain string `json:"domain,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type QuerySemanticMemoryResponse struct {
	Episodes []EpisodeSummary `json:"episodes"`
}

// handleQuerySemanticMemory runs the hierarchical retriever with the query's
// embedding, which feeds its level-4 similarity scoring; it only makes sense with a real embedder configured, since the
// fallback token-Jaccard retriever behind a nil embedder is what
// query_memory's relevance sort already exposes.
func (s *Server) handleQuerySemanticMemory(ctx context.Context, req *mcp.CallToolRequest, input QuerySemanticMemoryRequest) (*mcp.CallToolResult, *QuerySemanticMemoryResponse, error) {
	if s.embedder == nil {
		return nil, nil, errors.NewStructuredError(errors.ErrEmbeddingUnavailable, "no embedding provider is configured")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	scored, err := s.store.RetrieveRelevantContext(ctx, input.Query, types.TaskContext{Domain: input.Domain}, nil, limit)
	if err != nil {
		return nil, nil, err
	}
	out := make([]EpisodeSummary, 0, len(scored))
	for _, sc := range scored {
		ep, err := s.store.GetEpisode(sc.EpisodeID)
		if err != nil {
			continue
		}
		sum := summarize(ep)
		rel := sc.Relevance
		sum.RelevanceScore = &rel
		out = append(out, sum)
	}
	resp := &QuerySemanticMemoryResponse{Episodes: out}
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// test_embeddings
// ---------------------------------------------------------------------

type TestEmbeddingsResponse struct {
	Reachable bool   `json:"reachable"`
	Provider  string `json:"provider,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTestEmbeddings(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *TestEmbeddingsResponse, error) {
	resp := &TestEmbeddingsResponse{}
	if s.embedder == nil {
		resp.Error = "no embedding provider configured"
		return resultOf(resp), resp, nil
	}
	resp.Provider = s.embedder.Provider()
	vec, err := s.embedder.Embed(ctx, "connectivity probe")
	if err != nil {
		resp.Error = err.Error()
		return resultOf(resp), resp, nil
	}
	resp.Reachable = true
	resp.Dimension = len(vec)
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// health_check
// ---------------------------------------------------------------------

type HealthCheckResponse struct {
	Storage  string           `json:"storage"`
	Sandbox  map[string]sandbox.BackendStats `json:"sandbox"`
	Audit    string           `json:"audit"`
	Episodes int              `json:"indexed_episodes"`
}

func (s *Server) handleHealthCheck(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *HealthCheckResponse, error) {
	resp := &HealthCheckResponse{Storage: "ok", Audit: "ok"}
	if _, err := s.store.ListEpisodes(1, 0, false); err != nil {
		resp.Storage = "unavailable: " + err.Error()
	}
	resp.Sandbox = map[string]sandbox.BackendStats{
		string(sandbox.BackendProcess): s.router.Stats(sandbox.BackendProcess),
		string(sandbox.BackendWasm):    s.router.Stats(sandbox.BackendWasm),
	}
	resp.Episodes = s.store.Index().Len()
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// get_metrics
// ---------------------------------------------------------------------

type GetMetricsResponse struct {
	TotalEpisodes        int                              `json:"total_episodes"`
	CompletedEpisodes    int                              `json:"completed_episodes"`
	TotalPatterns        int                              `json:"total_patterns"`
	TotalRelationships   int                              `json:"total_relationships"`
	PutEpisodeCalls      int64                            `json:"put_episode_calls"`
	PutPatternCalls      int64                            `json:"put_pattern_calls"`
	PutRelationshipCalls int64                            `json:"put_relationship_calls"`
	SampledAt            time.Time                        `json:"sampled_at"`
	IndexedDomains       []string                         `json:"indexed_domains"`
	SandboxStats         map[string]sandbox.BackendStats  `json:"sandbox_stats"`
}

func (s *Server) handleGetMetrics(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *GetMetricsResponse, error) {
	m := s.strg.GetMetrics()
	resp := &GetMetricsResponse{
		TotalEpisodes:        m.TotalEpisodes,
		CompletedEpisodes:    m.CompletedEpisodes,
		TotalPatterns:        m.TotalPatterns,
		TotalRelationships:   m.TotalRelationships,
		PutEpisodeCalls:      m.PutEpisodeCalls,
		PutPatternCalls:      m.PutPatternCalls,
		PutRelationshipCalls: m.PutRelationshipCalls,
		SampledAt:            m.SampledAt,
		IndexedDomains:       s.store.Index().Domains(),
		SandboxStats: map[string]sandbox.BackendStats{
			string(sandbox.BackendProcess): s.router.Stats(sandbox.BackendProcess),
			string(sandbox.BackendWasm):    s.router.Stats(sandbox.BackendWasm),
		},
	}
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// quality_metrics
// ---------------------------------------------------------------------

type QualityMetricsRequest struct {
	Domain string `json:"domain,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type QualityMetricsResponse struct {
	Clusters     []analytics.Cluster     `json:"clusters"`
	Anomalies    []analytics.Anomaly     `json:"anomalies"`
	Changepoints []analytics.Changepoint `json:"changepoints,omitempty"`
}

// handleQualityMetrics clusters recent completed episodes' feature vectors
// to flag outliers, and runs changepoint detection over the same episodes'
// reward series to flag shifts in task performance over time.
func (s *Server) handleQualityMetrics(ctx context.Context, req *mcp.CallToolRequest, input QualityMetricsRequest) (*mcp.CallToolResult, *QualityMetricsResponse, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}
	episodes, err := s.store.ListEpisodes(limit, 0, true)
	if err != nil {
		return nil, nil, err
	}

	var features []analytics.Feature
	var rewards []float64
	for _, ep := range episodes {
		if input.Domain != "" && ep.Context.Domain != input.Domain {
			continue
		}
		var successRate, outcomeCode float64
		if ep.Outcome != nil {
			if ep.Outcome.Kind == types.OutcomeSuccess {
				successRate, outcomeCode = 1, 1
			} else if ep.Outcome.Kind == types.OutcomePartialSuccess {
				successRate, outcomeCode = 0.5, 0.5
			}
		}
		var latencySeconds float64
		for _, st := range ep.Steps {
			latencySeconds += float64(st.LatencyMS) / 1000.0
		}
		if len(ep.Steps) > 0 {
			latencySeconds /= float64(len(ep.Steps))
		}
		features = append(features, analytics.BuildFeature(
			ep.ID,
			domainHash(ep.Context.Domain),
			kindCode(ep.Kind),
			complexityCode(ep.Context.Complexity),
			ep.Context.Language != "",
			ep.Context.Framework != "",
			len(ep.Steps),
			successRate,
			latencySeconds,
			len(ep.Context.Tags),
			outcomeCode,
		))
		if ep.Reward != nil {
			rewards = append(rewards, ep.Reward.Total)
		}
	}

	clusters, anomalies := analytics.ClusterAnomalies(features, analytics.DefaultAnomalyConfig())
	resp := &QualityMetricsResponse{Clusters: clusters, Anomalies: anomalies}

	if len(rewards) >= 5 {
		if cps, err := analytics.DetectChangepoints(rewards, analytics.DefaultChangepointConfig()); err == nil {
			resp.Changepoints = cps
		}
	}
	return resultOf(resp), resp, nil
}

// domainHash maps a domain string to a stable value in [0,1) for feature
// vectors — the miner's own aggregation keys use the raw domain string, but
// analytics.Feature needs a numeric dimension.
func domainHash(domain string) float64 {
	h := fnv.New32a()
	h.Write([]byte(domain))
	return float64(h.Sum32()%1000) / 1000.0
}

func kindCode(k types.TaskKind) float64 {
	switch k {
	case types.TaskCodeGen:
		return 0.0
	case types.TaskDebug:
		return 1.0 / 6
	case types.TaskRefactor:
		return 2.0 / 6
	case types.TaskTest:
		return 3.0 / 6
	case types.TaskDoc:
		return 4.0 / 6
	case types.TaskAnalysis:
		return 5.0 / 6
	default:
		return 1.0
	}
}

func complexityCode(c types.ComplexityLevel) float64 {
	switch c {
	case types.ComplexitySimple:
		return 0.0
	case types.ComplexityModerate:
		return 1.0 / 3
	case types.ComplexityComplex:
		return 2.0 / 3
	case types.ComplexityVeryComplex:
		return 1.0
	default:
		return 0.0
	}
}
