package server

import (
	"context"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/types"
)

// ---------------------------------------------------------------------
// analyze_patterns
// ---------------------------------------------------------------------

type AnalyzePatternsRequest struct {
	TaskType       string  `json:"task_type"`
	MinSuccessRate float64 `json:"min_success_rate,omitempty"`
	Limit          int     `json:"limit,omitempty"`
}

type AnalyzePatternsResponse struct {
	Patterns []*types.Pattern `json:"patterns"`
}

// handleAnalyzePatterns filters the miner's last-derived pattern set by
// task_type (matched against Pattern.Context, the domain a pattern was
// mined under — the miner does not track TaskKind as a dimension separate
// from domain) and a minimum success rate, then ranks by confidence.
func (s *Server) handleAnalyzePatterns(ctx context.Context, req *mcp.CallToolRequest, input AnalyzePatternsRequest) (*mcp.CallToolResult, *AnalyzePatternsResponse, error) {
	minRate := input.MinSuccessRate
	if minRate <= 0 {
		minRate = 0.7
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	all := s.patMiner.Current()
	out := make([]*types.Pattern, 0, len(all))
	for _, p := range all {
		if input.TaskType != "" && p.Context != input.TaskType {
			continue
		}
		if p.SuccessRate < minRate {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}

	resp := &AnalyzePatternsResponse{Patterns: out}
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// search_patterns
// ---------------------------------------------------------------------

type SearchPatternsRequest struct {
	Query           string   `json:"query,omitempty"`
	TaskDescription string   `json:"task_description,omitempty"`
	Domain          string   `json:"domain"`
	Tags            []string `json:"tags,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	MinRelevance    float64  `json:"min_relevance,omitempty"`
}

type SearchPatternsResponse struct {
	Patterns []*types.Pattern `json:"patterns"`
}

// handleSearchPatterns ranks the current pattern set for a domain by a
// simple relevance score: confidence, boosted per requested tag found
// among a ContextPattern's context_features or a ToolSequence's tools.
func (s *Server) handleSearchPatterns(ctx context.Context, req *mcp.CallToolRequest, input SearchPatternsRequest) (*mcp.CallToolResult, *SearchPatternsResponse, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	all := s.patMiner.Current()
	type scored struct {
		p   *types.Pattern
		rel float64
	}
	var candidates []scored
	for _, p := range all {
		if input.Domain != "" && p.Context != input.Domain {
			continue
		}
		rel := p.Confidence
		if len(input.Tags) > 0 {
			hits := 0
			haystack := append(append([]string{}, p.Tools...), p.ContextFeatures...)
			for _, tag := range input.Tags {
				for _, h := range haystack {
					if h == tag {
						hits++
						break
					}
				}
			}
			rel = rel * (0.5 + 0.5*float64(hits)/float64(len(input.Tags)))
		}
		if rel < input.MinRelevance {
			continue
		}
		candidates = append(candidates, scored{p: p, rel: rel})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rel != candidates[j].rel {
			return candidates[i].rel > candidates[j].rel
		}
		return candidates[i].p.ID < candidates[j].p.ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*types.Pattern, len(candidates))
	for i, c := range candidates {
		out[i] = c.p
	}
	resp := &SearchPatternsResponse{Patterns: out}
	return resultOf(resp), resp, nil
}

// ---------------------------------------------------------------------
// recommend_patterns
// ---------------------------------------------------------------------

type RecommendPatternsRequest struct {
	Domain string `json:"domain"`
	Limit  int    `json:"limit,omitempty"`
}

type RecommendPatternsResponse struct {
	Patterns []*types.Pattern `json:"patterns"`
}

// handleRecommendPatterns Thompson-samples each candidate pattern's Beta
// posterior via pattern.Miner.Recommend, favoring well-sampled
// high-confidence patterns while still exploring young ones.
func (s *Server) handleRecommendPatterns(ctx context.Context, req *mcp.CallToolRequest, input RecommendPatternsRequest) (*mcp.CallToolResult, *RecommendPatternsResponse, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	s.rngMu.Lock()
	rng := s.rng
	picked := s.patMiner.Recommend(input.Domain, limit, rng)
	s.rngMu.Unlock()

	resp := &RecommendPatternsResponse{Patterns: picked}
	return resultOf(resp), resp, nil
}
