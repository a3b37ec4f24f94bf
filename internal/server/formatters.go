package server

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unified-thinking/internal/audit"
	"unified-thinking/internal/ratelimit"
)

// toJSONContent converts a response struct into the single MCP TextContent
// block every tool in this protocol returns — consumed by the calling agent
// directly, so no human-oriented formatting layer is applied.
func toJSONContent(data interface{}) []mcp.Content {
	jsonData, err := json.Marshal(data)
	if err != nil {
		jsonData, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return []mcp.Content{&mcp.TextContent{Text: string(jsonData)}}
}

func resultOf(data interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: toJSONContent(data)}
}

// admit enforces the per-(client_id, operation_class) token bucket around
// one tool call of the given class, auditing denials as spec.md §6 requires. On success
// it returns a Reservation the caller should Cancel if the operation turns
// out not to be performed (e.g. validation fails before any mutation).
func (s *Server) admit(ctx context.Context, clientID, subject string, class ratelimit.OperationClass) (*mcp.CallToolResult, *ratelimit.Reservation, error) {
	if clientID == "" {
		clientID = "default"
	}
	decision, res := s.limiter.Admit(clientID, class)
	if !decision.Allowed {
		s.auditLog.Log(ctx, audit.Event{
			Type:     "rate_limit_violation",
			ClientID: clientID,
			Subject:  subject,
			Details: map[string]any{
				"operation_class": string(class),
			},
		})
		return resultOf(decision.AsError()), nil, nil
	}
	return nil, res, nil
}
