package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// credentialArgs are stripped from the arguments before they become the
// tool body.
var credentialArgs = []string{"api_key", "session_token"}

// handleTool returns the handler for one protocol tool. Failures are tool
// errors, not protocol errors, so the client sees the reason.
func (s *Server) handleTool(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		creds := adp.Credentials{
			APIKey:       request.GetString("api_key", s.creds.APIKey),
			SessionToken: request.GetString("session_token", s.creds.SessionToken),
		}

		args := make(map[string]any)
		for k, v := range request.GetArguments() {
			args[k] = v
		}
		for _, k := range credentialArgs {
			delete(args, k)
		}
		body, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := s.svc.CallTool(ctx, name, creds, body)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(out)
	}
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", errkind.Kind(err), errkind.Message(err)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
