package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/ratelimit"
	"unified-thinking/internal/relationship"
	"unified-thinking/internal/types"
)

type AddRelationshipRequest struct {
	From     string                      `json:"from"`
	To       string                      `json:"to"`
	Type     types.RelationshipType      `json:"type"`
	Metadata types.RelationshipMetadata  `json:"metadata,omitempty"`
	ClientID string                      `json:"client_id,omitempty"`
}

type AddRelationshipResponse struct {
	Relationship *types.EpisodeRelationship `json:"relationship"`
}

func (s *Server) handleAddRelationship(ctx context.Context, req *mcp.CallToolRequest, input AddRelationshipRequest) (*mcp.CallToolResult, *AddRelationshipResponse, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.From, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	edge, err := s.relMgr.Add(input.From, input.To, input.Type, input.Metadata)
	if err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &AddRelationshipResponse{Relationship: edge}
	return resultOf(resp), resp, nil
}

type RemoveRelationshipRequest struct {
	RelationshipID string `json:"relationship_id"`
	ClientID       string `json:"client_id,omitempty"`
}

func (s *Server) handleRemoveRelationship(ctx context.Context, req *mcp.CallToolRequest, input RemoveRelationshipRequest) (*mcp.CallToolResult, *StatusOK, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.RelationshipID, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}
	if err := s.relMgr.Remove(input.RelationshipID); err != nil {
		res.Cancel()
		return nil, nil, err
	}
	resp := &StatusOK{Status: "ok"}
	return resultOf(resp), resp, nil
}

type ListRelationshipsRequest struct {
	EpisodeID string `json:"episode_id"`
}

type ListRelationshipsResponse struct {
	Outgoing []*types.EpisodeRelationship `json:"outgoing"`
	Incoming []*types.EpisodeRelationship `json:"incoming"`
}

func (s *Server) handleListRelationships(ctx context.Context, req *mcp.CallToolRequest, input ListRelationshipsRequest) (*mcp.CallToolResult, *ListRelationshipsResponse, error) {
	resp := &ListRelationshipsResponse{
		Outgoing: s.relMgr.GetOutgoing(input.EpisodeID),
		Incoming: s.relMgr.GetIncoming(input.EpisodeID),
	}
	return resultOf(resp), resp, nil
}

type FindRelatedRequest struct {
	EpisodeID   string                  `json:"episode_id"`
	Type        *types.RelationshipType `json:"type,omitempty"`
	Direction   string                  `json:"direction,omitempty"` // outgoing|incoming|both
	Limit       int                     `json:"limit,omitempty"`
	MinPriority *int                    `json:"min_priority,omitempty"`
}

type FindRelatedResponse struct {
	Relationships []*types.EpisodeRelationship `json:"relationships"`
}

func (s *Server) handleFindRelated(ctx context.Context, req *mcp.CallToolRequest, input FindRelatedRequest) (*mcp.CallToolResult, *FindRelatedResponse, error) {
	dir := relationship.DirectionBoth
	switch input.Direction {
	case string(relationship.DirectionOutgoing):
		dir = relationship.DirectionOutgoing
	case string(relationship.DirectionIncoming):
		dir = relationship.DirectionIncoming
	}
	rels := s.relMgr.FindRelated(input.EpisodeID, relationship.Filter{
		Type:        input.Type,
		Direction:   dir,
		Limit:       input.Limit,
		MinPriority: input.MinPriority,
	})
	resp := &FindRelatedResponse{Relationships: rels}
	return resultOf(resp), resp, nil
}

type DependencyGraphRequest struct {
	EpisodeID string `json:"episode_id"`
	Depth     int    `json:"depth,omitempty"`
	Format    string `json:"format,omitempty"` // node_link (default) | dot
}

type DependencyGraphResponse struct {
	Nodes []string                    `json:"nodes,omitempty"`
	Links []map[string]interface{}    `json:"links,omitempty"`
	DOT   string                      `json:"dot,omitempty"`
}

func (s *Server) handleDependencyGraph(ctx context.Context, req *mcp.CallToolRequest, input DependencyGraphRequest) (*mcp.CallToolResult, *DependencyGraphResponse, error) {
	depth := input.Depth
	if depth <= 0 {
		depth = 3
	}
	nodes, edges := s.relMgr.DependencyGraph(input.EpisodeID, depth)

	resp := &DependencyGraphResponse{}
	if input.Format == "dot" {
		resp.DOT = relationship.DOT(nodes, edges)
	} else {
		nl := relationship.NodeLinkJSON(nodes, edges)
		resp.Nodes, _ = nl["nodes"].([]string)
		resp.Links, _ = nl["links"].([]map[string]interface{})
	}
	return resultOf(resp), resp, nil
}

type ValidateCyclesResponse struct {
	Cyclic bool     `json:"cyclic"`
	Path   []string `json:"path,omitempty"`
}

func (s *Server) handleValidateCycles(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *ValidateCyclesResponse, error) {
	cyclic, path := s.relMgr.ValidateCycles()
	resp := &ValidateCyclesResponse{Cyclic: cyclic, Path: path}
	return resultOf(resp), resp, nil
}

type TopologicalSortResponse struct {
	Order []string `json:"order"`
}

func (s *Server) handleTopologicalSort(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *TopologicalSortResponse, error) {
	order, err := s.relMgr.TopologicalOrder(ctx)
	if err != nil {
		return nil, nil, err
	}
	resp := &TopologicalSortResponse{Order: order}
	return resultOf(resp), resp, nil
}
