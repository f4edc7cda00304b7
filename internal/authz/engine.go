package authz

import (
	"context"
	"log/slog"

	d "github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// AgentProfile is what the engine needs to know about an agent.
type AgentProfile struct {
	AgentID       string
	AutonomyLevel d.AutonomyLevel
	Active        bool
}

// AgentLookup resolves an agent inside an organization.
type AgentLookup interface {
	Profile(ctx context.Context, organizationID, agentID string) (AgentProfile, error)
}

// Engine authorizes actions for registered agents.
type Engine struct {
	agents AgentLookup
	logger *slog.Logger
}

// NewEngine creates an Engine backed by the given agent registry.
func NewEngine(agents AgentLookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{agents: agents, logger: logger}
}

// Authorize looks up the agent's autonomy level and evaluates the matrix.
// A missing or inactive agent is reported as not found.
func (e *Engine) Authorize(ctx context.Context, organizationID, agentID string, typ d.Type, risk d.RiskLevel) (Decision, error) {
	if !typ.Valid() {
		return Decision{}, errkind.E(errkind.ErrValidation, "invalid decision type %q", typ)
	}
	p, err := e.agents.Profile(ctx, organizationID, agentID)
	if err != nil {
		return Decision{}, err
	}
	if !p.Active {
		return Decision{}, errkind.E(errkind.ErrNotFound, "agent %q not found or not active", agentID)
	}

	dec, err := Evaluate(p.AutonomyLevel, typ, risk)
	if err != nil {
		return Decision{}, err
	}
	e.logger.Debug("authorization evaluated",
		"organization", organizationID,
		"agent", agentID,
		"cell", dec.MatrixCell,
		"result", dec.Result,
		"override", dec.OverrideApplied,
	)
	return dec, nil
}
