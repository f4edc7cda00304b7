package adp

import (
	"strings"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

// validator is implemented by request bodies that can be checked without
// touching the stores. decode runs it, so a malformed request is rejected
// before authentication records any key use.
type validator interface {
	Validate() error
}

func (r RegisterAgentRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.AgentID) == "":
		return errkind.E(errkind.ErrValidation, "agent_id is required")
	case strings.TrimSpace(r.Name) == "":
		return errkind.E(errkind.ErrValidation, "name is required")
	}
	if _, err := decision.ParseAutonomyLevel(r.AutonomyLevel); err != nil {
		return err
	}
	if _, err := decision.ParseOptionalRiskLevel(r.MaxRiskLevel); err != nil {
		return err
	}
	for _, t := range r.AllowedDecisionTypes {
		if _, err := decision.ParseType(t); err != nil {
			return err
		}
	}
	return nil
}

func (r ClassifyRequest) Validate() error {
	_, err := Classify(r)
	return err
}

func (r AuthorizeRequest) Validate() error {
	return typeAndRisk(r.DecisionType, r.RiskLevel)
}

func (r EvaluatePolicyRequest) Validate() error {
	return typeAndRisk(r.DecisionType, r.RiskLevel)
}

func (r LogTraceRequest) Validate() error {
	if r.EventType != "" && !trace.EventType(r.EventType).Valid() {
		return errkind.E(errkind.ErrValidation, "invalid event type %q: must be decision, approval or escalation", r.EventType)
	}
	if err := typeAndRisk(r.Decision.Type, r.Decision.RiskLevel); err != nil {
		return err
	}
	if r.Decision.Reversibility != "" {
		if _, err := decision.ParseReversibility(r.Decision.Reversibility); err != nil {
			return err
		}
	}
	return nil
}

func (r AddPolicyRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.PolicyID) == "":
		return errkind.E(errkind.ErrValidation, "policy_id is required")
	case strings.TrimSpace(r.Name) == "":
		return errkind.E(errkind.ErrValidation, "name is required")
	}
	_, err := policy.Compile(r.Rule)
	return err
}

func (r VerifyChainRequest) Validate() error {
	if r.Limit < 0 {
		return errkind.E(errkind.ErrValidation, "limit must not be negative")
	}
	return nil
}

func typeAndRisk(typ, risk string) error {
	if _, err := decision.ParseType(typ); err != nil {
		return err
	}
	_, err := decision.ParseOptionalRiskLevel(risk)
	return err
}
