package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/session"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

type testEnv struct {
	srv   *Server
	svc   *adp.Service
	token string
	key   string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	sessions := session.NewStore(database)
	if err := sessions.UpsertProfile(ctx, session.Principal{UserID: "u1", OrganizationID: "org-1"}); err != nil {
		t.Fatal(err)
	}
	token, err := sessions.Issue(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	svc := adp.NewService(adp.Deps{
		Agents:   credential.NewStore(database, nil),
		Sessions: sessions,
		Policies: policy.NewStore(database, nil),
		Traces:   trace.NewStore(database, nil),
	})
	reg, err := svc.RegisterAgent(ctx, token, adp.RegisterAgentRequest{AgentID: "planner", Name: "Planner", AutonomyLevel: "A3"})
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	return &testEnv{
		srv:   NewServer(svc, adp.Credentials{APIKey: reg.APIKey}, nil),
		svc:   svc,
		token: token,
		key:   reg.APIKey,
	}
}

func callTool(t *testing.T, env *testEnv, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := env.srv.handleTool(name)(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: unexpected protocol error: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestToolDefinitions(t *testing.T) {
	if len(allTools) != len(adp.ToolNames) {
		t.Fatalf("expected %d tools, got %d", len(adp.ToolNames), len(allTools))
	}
	for i, tool := range allTools {
		if tool.Name != adp.ToolNames[i] {
			t.Errorf("tool %d name = %q, want %q", i, tool.Name, adp.ToolNames[i])
		}
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
}

func TestNewServer(t *testing.T) {
	env := setup(t)
	if env.srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if env.srv.creds.APIKey != env.key {
		t.Error("configured credential not kept")
	}
}

func TestHandleToolUsesConfiguredKey(t *testing.T) {
	env := setup(t)
	result := callTool(t, env, adp.ToolClassify, map[string]any{
		"decision_type": "D2", "risk_level": "R2", "reversibility": "partial",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if got["classification_code"] != "D2-R2-partial" {
		t.Errorf("unexpected classification: %v", got)
	}
}

func TestHandleToolExplicitKey(t *testing.T) {
	env := setup(t)
	result := callTool(t, env, adp.ToolAuthorize, map[string]any{
		"api_key":       "adp_not_a_key",
		"decision_type": "D1",
	})
	if !result.IsError {
		t.Fatal("expected a tool error for a bad key")
	}
	if text := resultText(t, result); !strings.HasPrefix(text, "unauthenticated:") {
		t.Errorf("unexpected error text %q", text)
	}
}

func TestHandleToolStripsCredentials(t *testing.T) {
	env := setup(t)
	result := callTool(t, env, adp.ToolLogTrace, map[string]any{
		"api_key":  env.key,
		"decision": map[string]any{"type": "D1", "risk_level": "R1", "reversibility": "total"},
		"context":  map[string]any{"ticket": "OPS-1"},
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if strings.Contains(resultText(t, result), env.key) {
		t.Error("the key must never appear in a tool result")
	}

	traces, err := env.svc.ReadResource(context.Background(), adp.ResourceTraces, adp.Credentials{APIKey: env.key}, nil)
	if err != nil {
		t.Fatal(err)
	}
	list := traces.(adp.TraceList)
	if len(list.Traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(list.Traces))
	}
	if _, leaked := list.Traces[0].Context["api_key"]; leaked {
		t.Error("credential arguments must not reach the stored trace")
	}
}

func TestRegisterAgentWithSessionToken(t *testing.T) {
	env := setup(t)
	result := callTool(t, env, adp.ToolRegisterAgent, map[string]any{
		"session_token":  env.token,
		"agent_id":       "executor",
		"name":           "Executor",
		"autonomy_level": "A2",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	var got adp.RegisterAgentResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got.APIKey, "adp_") || got.Agent.AgentID != "executor" {
		t.Errorf("unexpected registration: %+v", got)
	}

	result = callTool(t, env, adp.ToolRegisterAgent, map[string]any{
		"agent_id": "other", "name": "Other", "autonomy_level": "A2",
	})
	if !result.IsError {
		t.Error("register_agent without a session token must fail")
	}
}

func TestHandleResource(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	for _, uri := range []string{"adp://matrix", "adp://agents", "adp://policies", "adp://traces?limit=5"} {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = uri
		contents, err := env.srv.handleResource(ctx, req)
		if err != nil {
			t.Fatalf("%s: %v", uri, err)
		}
		text, ok := contents[0].(mcp.TextResourceContents)
		if !ok || text.MIMEType != "application/json" || text.URI != uri {
			t.Errorf("%s: unexpected contents %+v", uri, contents[0])
		}
		if !json.Valid([]byte(text.Text)) {
			t.Errorf("%s: body is not JSON", uri)
		}
	}

	for _, uri := range []string{"adp://secrets", "http://agents", "adp://"} {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = uri
		if _, err := env.srv.handleResource(ctx, req); err == nil {
			t.Errorf("%s: expected an error", uri)
		}
	}
}

func TestParseResourceURI(t *testing.T) {
	name, params, err := parseResourceURI("adp://traces?limit=20")
	if err != nil {
		t.Fatal(err)
	}
	if name != "traces" || params["limit"] != "20" {
		t.Errorf("got %q %v", name, params)
	}
	if resourceURI("matrix") != "adp://matrix" {
		t.Errorf("unexpected uri %q", resourceURI("matrix"))
	}
}
