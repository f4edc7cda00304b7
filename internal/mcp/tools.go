package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
)

// Every tool accepts an explicit credential so one MCP process can act for
// several agents; when absent the configured credential is used.
func withAPIKey() mcp.ToolOption {
	return mcp.WithString("api_key",
		mcp.Description("Agent API key. Defaults to the key configured for this server."),
	)
}

var (
	decisionTypes   = []string{"D1", "D2", "D3", "D4"}
	riskLevels      = []string{"R1", "R2", "R3", "R4"}
	reversibilities = []string{"total", "partial", "irreversible"}
	autonomyLevels  = []string{"A1", "A2", "A3", "A4", "A5"}
)

var registerAgentTool = mcp.NewTool(adp.ToolRegisterAgent,
	mcp.WithDescription("Register an AI agent in the organization of the signed-in user and issue its API key. The key is returned once."),
	mcp.WithString("session_token",
		mcp.Description("User session token. Defaults to the token configured for this server."),
	),
	mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identifier, unique within the organization")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
	mcp.WithString("description", mcp.Description("What the agent does")),
	mcp.WithString("autonomy_level", mcp.Required(), mcp.Description("Granted autonomy"), mcp.Enum(autonomyLevels...)),
	mcp.WithArray("allowed_decision_types",
		mcp.Description("Decision types the agent may take (default: all)"),
		mcp.Items(map[string]any{"type": "string", "enum": decisionTypes}),
	),
	mcp.WithString("max_risk_level", mcp.Description("Highest risk level the agent should act at"), mcp.Enum(riskLevels...)),
	mcp.WithString("owner", mcp.Description("Accountable human contact (default: the signed-in user)")),
)

var classifyTool = mcp.NewTool(adp.ToolClassify,
	mcp.WithDescription("Classify a decision into its type-risk-reversibility code and report whether it requires escalation."),
	withAPIKey(),
	mcp.WithString("decision_type", mcp.Required(), mcp.Enum(decisionTypes...)),
	mcp.WithString("risk_level", mcp.Required(), mcp.Enum(riskLevels...)),
	mcp.WithString("reversibility", mcp.Required(), mcp.Enum(reversibilities...)),
)

var authorizeTool = mcp.NewTool(adp.ToolAuthorize,
	mcp.WithDescription("Check whether an agent may take a decision on its own, needs human approval, or is prohibited."),
	withAPIKey(),
	mcp.WithString("agent_id", mcp.Description("Agent to check (default: the calling agent)")),
	mcp.WithString("decision_type", mcp.Required(), mcp.Enum(decisionTypes...)),
	mcp.WithString("risk_level", mcp.Enum(riskLevels...)),
)

var logTraceTool = mcp.NewTool(adp.ToolLogTrace,
	mcp.WithDescription("Append a decision, approval or escalation to the agent's tamper-evident audit chain."),
	withAPIKey(),
	mcp.WithString("agent_id", mcp.Description("Agent whose chain to append to (default: the calling agent)")),
	mcp.WithString("event_type", mcp.Description("Event kind (default: decision)"), mcp.Enum("decision", "approval", "escalation")),
	mcp.WithObject("decision",
		mcp.Required(),
		mcp.Description("Decision metadata"),
		mcp.Properties(map[string]any{
			"type":                map[string]any{"type": "string", "enum": decisionTypes},
			"risk_level":          map[string]any{"type": "string", "enum": riskLevels},
			"reversibility":       map[string]any{"type": "string", "enum": reversibilities},
			"classification_code": map[string]any{"type": "string"},
			"description":         map[string]any{"type": "string"},
			"reasoning":           map[string]any{"type": "string"},
		}),
	),
	mcp.WithObject("authorization", mcp.Description("Snapshot of the authorization result")),
	mcp.WithObject("context", mcp.Description("Free-form context of the decision")),
)

var evaluatePolicyTool = mcp.NewTool(adp.ToolEvaluatePolicy,
	mcp.WithDescription("Evaluate a proposed decision against the organization's active policies."),
	withAPIKey(),
	mcp.WithString("agent_id", mcp.Description("Agent proposing the decision (default: the calling agent)")),
	mcp.WithString("decision_type", mcp.Required(), mcp.Enum(decisionTypes...)),
	mcp.WithString("risk_level", mcp.Enum(riskLevels...)),
	mcp.WithObject("context", mcp.Description("Context fields policies may match on, e.g. action_type")),
)

var validateTraceTool = mcp.NewTool(adp.ToolValidateTrace,
	mcp.WithDescription("Statically validate a trace-shaped record without storing it."),
	withAPIKey(),
	mcp.WithObject("trace", mcp.Required(), mcp.Description("Trace record to validate")),
)

var addPolicyTool = mcp.NewTool(adp.ToolAddPolicy,
	mcp.WithDescription("Register a new active policy for the organization."),
	withAPIKey(),
	mcp.WithString("policy_id", mcp.Required()),
	mcp.WithString("name", mcp.Required()),
	mcp.WithString("category"),
	mcp.WithString("severity"),
	mcp.WithObject("rule",
		mcp.Required(),
		mcp.Description(`Rule: {"conditions": {...}, "requires": "human_approval" | "prohibited"}`),
	),
	mcp.WithArray("regulatory_mapping",
		mcp.Description("Regulatory references, e.g. EU-AI-Act Art.14"),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var verifyChainTool = mcp.NewTool(adp.ToolVerifyChain,
	mcp.WithDescription("Verify the hash linkage of an agent's audit chain."),
	withAPIKey(),
	mcp.WithString("agent_id", mcp.Description("Agent whose chain to verify (default: the calling agent)")),
	mcp.WithNumber("limit", mcp.Description("Maximum records to inspect (default 1000, max 10000)")),
	mcp.WithBoolean("deep", mcp.Description("Also recompute every record's content hash")),
)

var allTools = []mcp.Tool{
	registerAgentTool, classifyTool, authorizeTool, logTraceTool,
	evaluatePolicyTool, validateTraceTool, addPolicyTool, verifyChainTool,
}
