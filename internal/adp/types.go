package adp

import (
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

// Credentials are what a caller presented. Which one is required depends on
// the operation.
type Credentials struct {
	APIKey       string
	SessionToken string
}

// RegisterAgentRequest is the body of register_agent.
type RegisterAgentRequest struct {
	AgentID              string   `json:"agent_id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	AutonomyLevel        string   `json:"autonomy_level"`
	AllowedDecisionTypes []string `json:"allowed_decision_types"`
	MaxRiskLevel         string   `json:"max_risk_level"`
	Owner                string   `json:"owner"`
}

// RegisterAgentResponse carries the raw key. It is the only response that
// ever does.
type RegisterAgentResponse struct {
	Agent     credential.Agent `json:"agent"`
	APIKey    string           `json:"api_key"`
	KeyPrefix string           `json:"key_prefix"`
	Warning   string           `json:"warning"`
}

// ClassifyRequest is the body of classify.
type ClassifyRequest struct {
	DecisionType  string `json:"decision_type"`
	RiskLevel     string `json:"risk_level"`
	Reversibility string `json:"reversibility"`
}

// AuthorizeRequest is the body of authorize. AgentID defaults to the
// authenticated agent.
type AuthorizeRequest struct {
	AgentID      string `json:"agent_id"`
	DecisionType string `json:"decision_type"`
	RiskLevel    string `json:"risk_level"`
}

// DecisionInput is the decision block of log_trace.
type DecisionInput struct {
	Type               string `json:"type"`
	RiskLevel          string `json:"risk_level"`
	Reversibility      string `json:"reversibility"`
	ClassificationCode string `json:"classification_code"`
	Description        string `json:"description"`
	Reasoning          string `json:"reasoning"`
}

// LogTraceRequest is the body of log_trace.
type LogTraceRequest struct {
	AgentID       string         `json:"agent_id"`
	EventType     string         `json:"event_type"`
	Decision      DecisionInput  `json:"decision"`
	Authorization map[string]any `json:"authorization"`
	Context       map[string]any `json:"context"`
}

// EvaluatePolicyRequest is the body of evaluate_policy.
type EvaluatePolicyRequest struct {
	AgentID      string         `json:"agent_id"`
	DecisionType string         `json:"decision_type"`
	RiskLevel    string         `json:"risk_level"`
	Context      map[string]any `json:"context"`
}

// AddPolicyRequest is the body of add_policy.
type AddPolicyRequest struct {
	PolicyID          string      `json:"policy_id"`
	Name              string      `json:"name"`
	Category          string      `json:"category"`
	Severity          string      `json:"severity"`
	Rule              policy.Rule `json:"rule"`
	RegulatoryMapping []string    `json:"regulatory_mapping"`
}

// AddPolicyResponse confirms a registered policy.
type AddPolicyResponse struct {
	PolicyID string        `json:"policy_id"`
	Active   bool          `json:"active"`
	Policy   policy.Policy `json:"policy"`
}

// VerifyChainRequest is the body of verify_chain.
type VerifyChainRequest struct {
	AgentID string `json:"agent_id"`
	Limit   int    `json:"limit"`
	Deep    bool   `json:"deep"`
}

// TraceList is the traces resource.
type TraceList struct {
	Traces []trace.Trace `json:"traces"`
	Limit  int           `json:"limit"`
}
