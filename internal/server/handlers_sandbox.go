package server

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/ratelimit"
	"unified-thinking/internal/sandbox"
)

// ExecuteAgentCodeContext carries the task description and input the
// sandboxed code runs against — echoed back, not interpreted by the router
// itself, since the router only ever sees raw code bytes.
type ExecuteAgentCodeContext struct {
	Task  string `json:"task"`
	Input string `json:"input,omitempty"`
}

type ExecuteAgentCodeRequest struct {
	Code     string                   `json:"code"`
	Context  ExecuteAgentCodeContext  `json:"context"`
	ClientID string                   `json:"client_id,omitempty"`
}

// ExecuteAgentCodeResponse mirrors sandbox.Result's three-shape tagged
// union directly: Kind discriminates Success/Error/Timeout, with the other
// fields populated per spec.md §6 (stdout+value on Success; message, plus
// any captured stdout, on Error; message on Timeout).
type ExecuteAgentCodeResponse struct {
	Kind     string   `json:"kind"`
	Stdout   string   `json:"stdout,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Message  string   `json:"message,omitempty"`
}

func (s *Server) handleExecuteAgentCode(ctx context.Context, req *mcp.CallToolRequest, input ExecuteAgentCodeRequest) (*mcp.CallToolResult, *ExecuteAgentCodeResponse, error) {
	rl, res, err := s.admit(ctx, input.ClientID, input.Context.Task, ratelimit.ClassWrite)
	if rl != nil || err != nil {
		return rl, nil, err
	}

	result := s.router.Route(ctx, []byte(input.Code), sandbox.Options{
		Timeout: 5 * time.Second,
	})

	resp := &ExecuteAgentCodeResponse{
		Kind:    string(result.Kind),
		Stdout:  result.Stdout,
		Message: result.Message,
	}
	if result.HasValue {
		v := result.Value
		resp.Value = &v
	}
	if result.Kind != sandbox.ResultSuccess {
		res.Cancel()
	}
	return resultOf(resp), resp, nil
}
