package policy

import (
	"context"
	"log/slog"

	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// Evaluate checks a subject against a set of policies. Inactive policies are
// skipped. A policy whose stored rule no longer compiles is treated as an
// applicable prohibition.
func Evaluate(policies []Policy, s Subject) Evaluation {
	ev := Evaluation{
		Violations:          []Violation{},
		ApplicablePolicyIDs: []string{},
	}
	for _, p := range policies {
		if !p.Active {
			continue
		}
		requirement := p.Rule.Requires
		conds, err := Compile(p.Rule)
		if err != nil {
			requirement = RequireProhibited
		} else if !allMatch(conds, s) {
			continue
		}
		ev.ApplicablePolicyIDs = append(ev.ApplicablePolicyIDs, p.PolicyID)
		if requirement.Valid() {
			ev.Violations = append(ev.Violations, Violation{
				PolicyID:    p.PolicyID,
				Name:        p.Name,
				Requirement: requirement,
				Severity:    p.Severity,
			})
		}
	}
	ev.Compliant = len(ev.Violations) == 0
	return ev
}

func allMatch(conds []Condition, s Subject) bool {
	for _, c := range conds {
		if !c.Match(s) {
			return false
		}
	}
	return true
}

// Evaluator loads an organization's active policies and evaluates them.
type Evaluator struct {
	store  *Store
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator over the given store.
func NewEvaluator(store *Store, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{store: store, logger: logger}
}

// Evaluate checks s against every active policy of the organization.
func (e *Evaluator) Evaluate(ctx context.Context, organizationID string, s Subject) (Evaluation, error) {
	if !s.DecisionType.Valid() {
		return Evaluation{}, errkind.E(errkind.ErrValidation, "invalid decision type %q", s.DecisionType)
	}
	if s.RiskLevel != "" && !s.RiskLevel.Valid() {
		return Evaluation{}, errkind.E(errkind.ErrValidation, "invalid risk level %q", s.RiskLevel)
	}
	policies, err := e.store.ListActive(ctx, organizationID)
	if err != nil {
		return Evaluation{}, err
	}
	for _, p := range policies {
		if _, err := Compile(p.Rule); err != nil {
			e.logger.Error("stored policy rule does not compile; treating as prohibited",
				"organization", organizationID, "policy", p.PolicyID, "error", err)
		}
	}
	ev := Evaluate(policies, s)
	e.logger.Debug("policies evaluated",
		"organization", organizationID,
		"active", len(policies),
		"applicable", len(ev.ApplicablePolicyIDs),
		"violations", len(ev.Violations),
	)
	return ev, nil
}
