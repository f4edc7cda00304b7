// Package adp is the transport-neutral dispatcher of the Agent Decision
// Protocol. HTTP and MCP front ends both call into Service.
package adp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/authz"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/session"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

// Tool names.
const (
	ToolRegisterAgent  = "register_agent"
	ToolClassify       = "classify"
	ToolAuthorize      = "authorize"
	ToolLogTrace       = "log_trace"
	ToolEvaluatePolicy = "evaluate_policy"
	ToolValidateTrace  = "validate_trace"
	ToolAddPolicy      = "add_policy"
	ToolVerifyChain    = "verify_chain"
)

// Resource names.
const (
	ResourceAgents   = "agents"
	ResourcePolicies = "policies"
	ResourceTraces   = "traces"
	ResourceMatrix   = "matrix"
)

// ToolNames lists every tool in a stable order.
var ToolNames = []string{
	ToolRegisterAgent, ToolClassify, ToolAuthorize, ToolLogTrace,
	ToolEvaluatePolicy, ToolValidateTrace, ToolAddPolicy, ToolVerifyChain,
}

// ResourceNames lists every resource in a stable order.
var ResourceNames = []string{ResourceAgents, ResourcePolicies, ResourceTraces, ResourceMatrix}

const keyWarning = "store this key now: it is shown once and cannot be retrieved again"

// Deps are the collaborators of a Service.
type Deps struct {
	Agents   *credential.Store
	Sessions session.Resolver
	Policies *policy.Store
	Traces   *trace.Store
	Logger   *slog.Logger
}

// Service dispatches tool calls and resource reads.
type Service struct {
	agents    *credential.Store
	sessions  session.Resolver
	engine    *authz.Engine
	policies  *policy.Store
	evaluator *policy.Evaluator
	traces    *trace.Store
	logger    *slog.Logger
}

// NewService wires a Service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		agents:    d.Agents,
		sessions:  d.Sessions,
		engine:    authz.NewEngine(agentLookup{agents: d.Agents}, logger),
		policies:  d.Policies,
		evaluator: policy.NewEvaluator(d.Policies, logger),
		traces:    d.Traces,
		logger:    logger,
	}
}

type toolFunc func(s *Service, ctx context.Context, creds Credentials, body []byte) (any, error)

var tools = map[string]toolFunc{
	ToolRegisterAgent: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req RegisterAgentRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		return s.RegisterAgent(ctx, c.SessionToken, req)
	},
	ToolClassify: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req ClassifyRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		if _, err := s.authenticate(ctx, c); err != nil {
			return nil, err
		}
		return Classify(req)
	},
	ToolAuthorize: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req AuthorizeRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		ac, err := s.authenticate(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.Authorize(ctx, ac, req)
	},
	ToolLogTrace: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req LogTraceRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		ac, err := s.authenticate(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.LogTrace(ctx, ac, req)
	},
	ToolEvaluatePolicy: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req EvaluatePolicyRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		ac, err := s.authenticate(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.EvaluatePolicy(ctx, ac, req)
	},
	ToolValidateTrace: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var record map[string]any
		if err := decode(b, &record); err != nil {
			return nil, err
		}
		if _, err := s.authenticate(ctx, c); err != nil {
			return nil, err
		}
		return ValidateTrace(record), nil
	},
	ToolAddPolicy: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req AddPolicyRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		ac, err := s.authenticate(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.AddPolicy(ctx, ac, req)
	},
	ToolVerifyChain: func(s *Service, ctx context.Context, c Credentials, b []byte) (any, error) {
		var req VerifyChainRequest
		if err := decode(b, &req); err != nil {
			return nil, err
		}
		ac, err := s.authenticate(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.VerifyChain(ctx, ac, req)
	},
}

// CallTool runs the named tool with a JSON body.
func (s *Service) CallTool(ctx context.Context, name string, creds Credentials, body json.RawMessage) (any, error) {
	fn, ok := tools[name]
	if !ok {
		return nil, errkind.E(errkind.ErrNotFound, "unknown tool %q", name)
	}
	start := time.Now()
	out, err := fn(s, ctx, creds, body)
	if err != nil {
		s.logger.Info("tool call failed", "tool", name, "kind", errkind.Kind(err), "error", err)
		return nil, err
	}
	s.logger.Debug("tool call", "tool", name, "duration", time.Since(start))
	return out, nil
}

// ReadResource returns the named resource for the caller's organization.
// The traces resource honours a "limit" parameter.
func (s *Service) ReadResource(ctx context.Context, name string, creds Credentials, params map[string]string) (any, error) {
	switch name {
	case ResourceAgents, ResourcePolicies, ResourceTraces, ResourceMatrix:
	default:
		return nil, errkind.E(errkind.ErrNotFound, "unknown resource %q", name)
	}
	ac, err := s.authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	switch name {
	case ResourceAgents:
		return s.agents.List(ctx, ac.OrganizationID)
	case ResourcePolicies:
		return s.policies.ListActive(ctx, ac.OrganizationID)
	case ResourceTraces:
		limit := 0
		if v := params["limit"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, errkind.E(errkind.ErrValidation, "limit must be an integer")
			}
			limit = n
		}
		limit = s.traces.RecentLimit(limit)
		traces, err := s.traces.Recent(ctx, ac.OrganizationID, limit)
		if err != nil {
			return nil, err
		}
		return TraceList{Traces: traces, Limit: limit}, nil
	default:
		return authz.Dump(), nil
	}
}

// Authenticate resolves an agent API key. Transports use it for endpoints
// that sit outside the tool table, such as the live feed.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*credential.AuthContext, error) {
	return s.authenticate(ctx, creds)
}

func (s *Service) authenticate(ctx context.Context, creds Credentials) (*credential.AuthContext, error) {
	return s.agents.Authenticate(ctx, creds.APIKey)
}

// RegisterAgent creates an agent in the organization of the user behind the
// session token and issues its first key.
func (s *Service) RegisterAgent(ctx context.Context, sessionToken string, req RegisterAgentRequest) (*RegisterAgentResponse, error) {
	principal, err := s.sessions.Resolve(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	level, err := decision.ParseAutonomyLevel(req.AutonomyLevel)
	if err != nil {
		return nil, err
	}
	risk, err := decision.ParseOptionalRiskLevel(req.MaxRiskLevel)
	if err != nil {
		return nil, err
	}
	var allowed []decision.Type
	for _, t := range req.AllowedDecisionTypes {
		typ, err := decision.ParseType(t)
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, typ)
	}
	owner := req.Owner
	if owner == "" {
		owner = principal.Email
	}

	reg, err := s.agents.Register(ctx, credential.RegisterRequest{
		OrganizationID:       principal.OrganizationID,
		AgentID:              req.AgentID,
		Name:                 req.Name,
		Description:          req.Description,
		AutonomyLevel:        level,
		AllowedDecisionTypes: allowed,
		MaxRiskLevel:         risk,
		Owner:                owner,
	})
	if err != nil {
		return nil, err
	}
	return &RegisterAgentResponse{
		Agent:     reg.Agent,
		APIKey:    reg.Secret.Reveal(),
		KeyPrefix: reg.Secret.Prefix(),
		Warning:   keyWarning,
	}, nil
}

// Classify computes the classification code of a decision.
func Classify(req ClassifyRequest) (decision.Classification, error) {
	typ, err := decision.ParseType(req.DecisionType)
	if err != nil {
		return decision.Classification{}, err
	}
	risk, err := decision.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		return decision.Classification{}, err
	}
	rev, err := decision.ParseReversibility(req.Reversibility)
	if err != nil {
		return decision.Classification{}, err
	}
	return decision.Classify(typ, risk, rev)
}

// targetAgent returns the agent an operation is about: the one named in the
// body, or the caller. Either way it must be an active agent of the
// caller's organization.
func (s *Service) targetAgent(ctx context.Context, ac *credential.AuthContext, agentID string) (string, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" || agentID == ac.AgentID {
		return ac.AgentID, nil
	}
	p, err := agentLookup{agents: s.agents}.Profile(ctx, ac.OrganizationID, agentID)
	if err != nil {
		return "", err
	}
	if !p.Active {
		return "", errkind.E(errkind.ErrNotFound, "agent %q not found or not active", agentID)
	}
	return agentID, nil
}

// Authorize evaluates the authorization matrix for an agent.
func (s *Service) Authorize(ctx context.Context, ac *credential.AuthContext, req AuthorizeRequest) (authz.Decision, error) {
	typ, err := decision.ParseType(req.DecisionType)
	if err != nil {
		return authz.Decision{}, err
	}
	risk, err := decision.ParseOptionalRiskLevel(req.RiskLevel)
	if err != nil {
		return authz.Decision{}, err
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = ac.AgentID
	}
	return s.engine.Authorize(ctx, ac.OrganizationID, agentID, typ, risk)
}

// LogTrace appends a trace to an agent's chain. A classification code is
// derived when the caller gave risk and reversibility but no code.
func (s *Service) LogTrace(ctx context.Context, ac *credential.AuthContext, req LogTraceRequest) (*trace.Receipt, error) {
	agentID, err := s.targetAgent(ctx, ac, req.AgentID)
	if err != nil {
		return nil, err
	}
	eventType := trace.EventType(req.EventType)
	if eventType == "" {
		eventType = trace.EventDecision
	}
	meta := trace.DecisionMeta{
		Type:               decision.Type(req.Decision.Type),
		RiskLevel:          decision.RiskLevel(req.Decision.RiskLevel),
		Reversibility:      decision.Reversibility(req.Decision.Reversibility),
		ClassificationCode: req.Decision.ClassificationCode,
		Description:        req.Decision.Description,
		Reasoning:          req.Decision.Reasoning,
	}
	if meta.ClassificationCode == "" && meta.RiskLevel != "" && meta.Reversibility != "" {
		if c, err := decision.Classify(meta.Type, meta.RiskLevel, meta.Reversibility); err == nil {
			meta.ClassificationCode = c.Code
		}
	}
	return s.traces.Log(ctx, trace.Entry{
		OrganizationID: ac.OrganizationID,
		AgentID:        agentID,
		EventType:      eventType,
		Decision:       meta,
		Authorization:  req.Authorization,
		Context:        req.Context,
	})
}

// EvaluatePolicy checks a proposed decision against the organization's
// active policies.
func (s *Service) EvaluatePolicy(ctx context.Context, ac *credential.AuthContext, req EvaluatePolicyRequest) (policy.Evaluation, error) {
	typ, err := decision.ParseType(req.DecisionType)
	if err != nil {
		return policy.Evaluation{}, err
	}
	risk, err := decision.ParseOptionalRiskLevel(req.RiskLevel)
	if err != nil {
		return policy.Evaluation{}, err
	}
	if _, err := s.targetAgent(ctx, ac, req.AgentID); err != nil {
		return policy.Evaluation{}, err
	}
	return s.evaluator.Evaluate(ctx, ac.OrganizationID, policy.Subject{
		DecisionType: typ,
		RiskLevel:    risk,
		Context:      req.Context,
	})
}

// ValidateTrace checks a trace-shaped payload. A record wrapped in a "trace"
// field is unwrapped first.
func ValidateTrace(record map[string]any) trace.ValidationResult {
	if inner, ok := record["trace"].(map[string]any); ok && len(record) == 1 {
		record = inner
	}
	return trace.Validate(record)
}

// AddPolicy registers a policy for the caller's organization.
func (s *Service) AddPolicy(ctx context.Context, ac *credential.AuthContext, req AddPolicyRequest) (*AddPolicyResponse, error) {
	p, err := s.policies.Add(ctx, policy.Policy{
		OrganizationID:    ac.OrganizationID,
		PolicyID:          req.PolicyID,
		Name:              req.Name,
		Category:          req.Category,
		Severity:          req.Severity,
		Rule:              req.Rule,
		RegulatoryMapping: req.RegulatoryMapping,
	})
	if err != nil {
		return nil, err
	}
	return &AddPolicyResponse{PolicyID: p.PolicyID, Active: p.Active, Policy: *p}, nil
}

// VerifyChain checks the hash linkage of an agent's chain.
func (s *Service) VerifyChain(ctx context.Context, ac *credential.AuthContext, req VerifyChainRequest) (*trace.Verification, error) {
	if req.Limit < 0 {
		return nil, errkind.E(errkind.ErrValidation, "limit must not be negative")
	}
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = ac.AgentID
	} else if _, err := s.agents.Get(ctx, ac.OrganizationID, agentID); err != nil {
		return nil, err
	}
	return s.traces.Verify(ctx, ac.OrganizationID, agentID, trace.VerifyOptions{
		Limit:           req.Limit,
		RecomputeHashes: req.Deep,
	})
}

func decode(body []byte, v any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errkind.E(errkind.ErrValidation, "invalid request body: %v", err)
	}
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}
