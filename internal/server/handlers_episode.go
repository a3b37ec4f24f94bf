package server

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/memory"
	"unified-thinking/internal/ratelimit"
	"unified-thinking/internal/types"
)

// StatusOK is the bare acknowledgement response for write tools that have
// nothing else to return.
type StatusOK struct {
	Status string `json:"status"`
}

// EpisodeSummary is the list-shaped projection query_memory and
// query_semantic_memory return — the full
// *types.Episode minus its step-by-step execution trace.
type EpisodeSummary struct {
	ID              string          `json:"id"`
	TaskDescription string          `json:"task_description"`
	Domain          string          `json:"domain"`
	TaskKind        types.TaskKind  `json:"task_kind"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time,omitempty"`
	Completed       bool            `json:"completed"`
	OutcomeKind     string          `json:"outcome_kind,omitempty"`
	RewardTotal     *float64        `json:"reward_total,omitempty"`
	StepCount       int             `json:"step_count"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	RelevanceScore  *float64        `json:"relevance_score,omitempty"`
}

func summarize(ep *types.Episode) EpisodeSummary {
	s := EpisodeSummary{
		ID:              ep.ID,
		TaskDescription: ep.TaskDescription,
		Domain:          ep.Context.Domain,
		TaskKind:        ep.Kind,
		StartTime:       ep.StartTime.UTC().Format(timeLayout),
		StepCount:       len(ep.Steps),
		Completed:       ep.IsComplete(),
	}
	if ep.EndTime != nil {
		s.EndTime = ep.EndTime.UTC().Format(timeLayout)
		d := ep.EndTime.Sub(ep.StartTime).Seconds()
		s.DurationSeconds = &d
	}
	if ep.Outcome != nil {
		s.OutcomeKind = string(ep.Outcome.Kind)
	}
	if ep.Reward != nil {
		t := ep.Reward.Total
		s.RewardTotal = &t
	}
	return s
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ---------------------------------------------------------------------
// query_memory
// ---------------------------------------------------------------------

type QueryMemoryRequest struct {
	Query    string   `json:"query"`
	Domain   string   `json:"domain"`
	TaskType string   `json:"task_type,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Sort     string   `json:"sort,omitempty"` // relevance|newest|oldest|duration|success
	Fields   []string `json:"fields,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
}

type QueryMemoryResponse struct {
	Episodes []map[string]interface{} `json:"episodes"`
}

// handleQueryMemory serves relevance-sorted queries from the full
// four-level retriever (memory.Store.RetrieveRelevantContext), and the
// other four sort orders from a plain filtered listing — relevance is the
// only order that needs the retriever's scoring pipeline.
func (s *Server) handleQueryMemory(ctx context.Context, req *mcp.CallToolRequest, input QueryMemoryRequest) (*mcp.CallToolResult, *QueryMemoryResponse, error) {
	if rl, _, err := s.admit(ctx, input.ClientID, "query_memory", ratelimit.ClassRead); rl != nil || err != nil {
		return rl, nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	sortBy := input.Sort
	if sortBy == "" {
		sortBy = "relevance"
	}

	var kind *types.TaskKind
	if input.TaskType != "" {
		k := types.TaskKind(input.TaskType)
		kind = &k
	}

	var episodes []*types.Episode
	var relevance map[string]float64

	if sortBy == "relevance" {
		scored, err := s.store.RetrieveRelevantContext(ctx, input.Query, types.TaskContext{Domain: input.Domain}, kind, limit)
		if err != nil {
			return nil, nil, err
		}
		relevance = make(map[string]float64, len(scored))
		for _, sc := range scored {
			ep, err := s.store.GetEpisode(sc.EpisodeID)
			if err != nil {
				continue
			}
			episodes = append(episodes, ep)
			relevance[sc.EpisodeID] = sc.Relevance
		}
	} else {
		all, err := s.store.ListEpisodes(0, 0, false)
		if err != nil {
			return nil, nil, err
		}
		for _, ep := range all {
			if input.Domain != "" && ep.Context.Domain != input.Domain {
				continue
			}
			if kind != nil && ep.Kind != *kind {
				continue
			}
			episodes = append(episodes, ep)
		}
		sortEpisodes(episodes, sortBy)
		if len(episodes) > limit {
			episodes = episodes[:limit]
		}
	}

	out := make([]map[string]interface{}, 0, len(episodes))
	for _, ep := range episodes {
		sum := summarize(ep)
		if r, ok := relevance[ep.ID]; ok {
			sum.RelevanceScore = &r
		}
		out = append(out, projectFields(sum, input.Fields))
	}

	resp := &QueryMemoryResponse{Episodes: out}
	return resultOf(resp), resp, nil
}

func sortEpisodes(eps []*types.Episode, by string) {
	switch by {
	case "newest":
		sort.Slice(eps, func(i, j int) bool { return eps[i].StartTime.After(eps[j].StartTime) })
	case "oldest":
		sort.Slice(eps, func(i, j int) bool { return eps[i].StartTime.Before(eps[j].StartTime) })
	case "duration":
		sort.Slice(eps, func(i, j int) bool { return durationOf(eps[i]) > durationOf(eps[j]) })
	case "success":
		sort.Slice(eps, func(i, j int) bool { return rewardOf(eps[i]) > rewardOf(eps[j]) })
	default:
		sort.Slice(eps, func(i, j int) bool { return eps[i].StartTime.After(eps[j].StartTime) })
	}
}

func durationOf(ep *types.Episode) float64 {
	if ep.EndTime == nil {
		return 0
	}
	return ep.EndTime.Sub(ep.StartTime).Seconds()
}

func rewardOf(ep *types.Episode) float64 {
	if ep.Reward == nil {
		return 0
	}
	return ep.Reward.Total
}

// projectFields marshals summary to a map and, if fields is non-empty,
// keeps only the requested keys.
func projectFields(sum EpisodeSummary, fields []string) map[string]interface{} {
	m := toMap(sum)
	if len(fields) == 0 {
		return m
	}
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range m {
		if want[k] {
			out[k] = v
		}
	}
	return out
}

// ---------------------------------------------------------------------
// create_episode / add_episode_step / complete_episode / get_episode /
// delete_episode / update_episode / get_episode_timeline / bulk_episodes
// ---------------------------------------------------------------------

type CreateEpisodeRequest struct {
	TaskDescription string            `json:"task_description"`
	Context         types.TaskContext `json:"context"`
	TaskKind        types.TaskKind    `json:"task_kind"`
	ClientID        string            `json:"client_id,omitempty"`
}

type CreateEpisodeResponse struct {
	EpisodeID string `json:"episode_id"`
}

func (s *Server) handleCreateEpisode(ctx context.Context, req *mcp.CallToolRequest, input CreateEpisodeRequest) (*mcp.CallToolResult, *CreateEpisodeResponse, error) {
	rl, res, err := s.admit(ctx, input.ClientID, "create_episode", ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	id, err := s.store.StartEpisode(ctx, input.TaskDescription, input.Context, input.TaskKind)
	if err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &CreateEpisodeResponse{EpisodeID: id}
	return resultOf(resp), resp, nil
}

type AddEpisodeStepRequest struct {
	EpisodeID string                `json:"episode_id"`
	Step      types.ExecutionStep   `json:"step"`
	ClientID  string                `json:"client_id,omitempty"`
}

func (s *Server) handleAddEpisodeStep(ctx context.Context, req *mcp.CallToolRequest, input AddEpisodeStepRequest) (*mcp.CallToolResult, *StatusOK, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.EpisodeID, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	if err := s.store.LogStep(ctx, input.EpisodeID, input.Step); err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &StatusOK{Status: "ok"}
	return resultOf(resp), resp, nil
}

type CompleteEpisodeRequest struct {
	EpisodeID string            `json:"episode_id"`
	Outcome   types.TaskOutcome `json:"outcome"`
	ClientID  string            `json:"client_id,omitempty"`
}

type CompleteEpisodeResponse struct {
	Episode *types.Episode `json:"episode"`
}

func (s *Server) handleCompleteEpisode(ctx context.Context, req *mcp.CallToolRequest, input CompleteEpisodeRequest) (*mcp.CallToolResult, *CompleteEpisodeResponse, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.EpisodeID, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	ep, err := s.store.CompleteEpisode(ctx, input.EpisodeID, input.Outcome)
	if err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &CompleteEpisodeResponse{Episode: ep}
	return resultOf(resp), resp, nil
}

type GetEpisodeRequest struct {
	EpisodeID string `json:"episode_id"`
}

type GetEpisodeResponse struct {
	Episode *types.Episode `json:"episode"`
}

func (s *Server) handleGetEpisode(ctx context.Context, req *mcp.CallToolRequest, input GetEpisodeRequest) (*mcp.CallToolResult, *GetEpisodeResponse, error) {
	ep, err := s.store.GetEpisode(input.EpisodeID)
	if err != nil {
		return nil, nil, err
	}
	resp := &GetEpisodeResponse{Episode: ep}
	return resultOf(resp), resp, nil
}

type DeleteEpisodeRequest struct {
	EpisodeID string `json:"episode_id"`
	ClientID  string `json:"client_id,omitempty"`
}

func (s *Server) handleDeleteEpisode(ctx context.Context, req *mcp.CallToolRequest, input DeleteEpisodeRequest) (*mcp.CallToolResult, *StatusOK, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.EpisodeID, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	if err := s.store.DeleteEpisode(ctx, input.EpisodeID); err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &StatusOK{Status: "ok"}
	return resultOf(resp), resp, nil
}

type UpdateEpisodeRequest struct {
	EpisodeID       string             `json:"episode_id"`
	TaskDescription *string            `json:"task_description,omitempty"`
	Context         *types.TaskContext `json:"context,omitempty"`
	ClientID        string             `json:"client_id,omitempty"`
}

type UpdateEpisodeResponse struct {
	Episode *types.Episode `json:"episode"`
}

func (s *Server) handleUpdateEpisode(ctx context.Context, req *mcp.CallToolRequest, input UpdateEpisodeRequest) (*mcp.CallToolResult, *UpdateEpisodeResponse, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.EpisodeID, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	ep, err := s.store.UpdateEpisode(ctx, input.EpisodeID, memory.EpisodeUpdate{
		TaskDescription: input.TaskDescription,
		Context:         input.Context,
	})
	if err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &UpdateEpisodeResponse{Episode: ep}
	return resultOf(resp), resp, nil
}

type GetEpisodeTimelineRequest struct {
	EpisodeID string `json:"episode_id"`
}

type GetEpisodeTimelineResponse struct {
	EpisodeID string                `json:"episode_id"`
	Steps     []types.ExecutionStep `json:"steps"`
}

func (s *Server) handleGetEpisodeTimeline(ctx context.Context, req *mcp.CallToolRequest, input GetEpisodeTimelineRequest) (*mcp.CallToolResult, *GetEpisodeTimelineResponse, error) {
	ep, err := s.store.GetEpisodeTimeline(input.EpisodeID)
	if err != nil {
		return nil, nil, err
	}
	resp := &GetEpisodeTimelineResponse{EpisodeID: ep.ID, Steps: ep.Steps}
	return resultOf(resp), resp, nil
}

type BulkEpisodesRequest struct {
	EpisodeIDs []string `json:"episode_ids"`
}

type BulkEpisodesResponse struct {
	RequestedCount int               `json:"requested_count"`
	FoundCount     int               `json:"found_count"`
	MissingCount   int               `json:"missing_count"`
	Episodes       []*types.Episode  `json:"episodes"`
}

func (s *Server) handleBulkEpisodes(ctx context.Context, req *mcp.CallToolRequest, input BulkEpisodesRequest) (*mcp.CallToolResult, *BulkEpisodesResponse, error) {
	found, missing := s.store.BulkEpisodes(input.EpisodeIDs)
	resp := &BulkEpisodesResponse{
		RequestedCount: len(input.EpisodeIDs),
		FoundCount:     len(found),
		MissingCount:   len(missing),
		Episodes:       found,
	}
	return resultOf(resp), resp, nil
}

// toMap round-trips a struct through JSON into a generic map, for field
// projection (query_memory's fields? parameter).
func toMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m
}
