// Package authz evaluates the autonomy × decision-type matrix and applies the
// mandatory downgrade-only override rules.
package authz

import (
	"fmt"

	d "github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// Result is the outcome of an authorization request.
type Result string

const (
	Authorized       Result = "authorized"
	ApprovalRequired Result = "approval_required"
	Prohibited       Result = "prohibited"
)

// strictness orders results so overrides can only move right.
func (r Result) strictness() int {
	switch r {
	case Authorized:
		return 0
	case ApprovalRequired:
		return 1
	default:
		return 2
	}
}

// baseMatrix is the fixed autonomy × decision-type table.
var baseMatrix = map[d.AutonomyLevel]map[d.Type]Result{
	d.A1: {d.D1: ApprovalRequired, d.D2: ApprovalRequired, d.D3: Prohibited, d.D4: Prohibited},
	d.A2: {d.D1: Authorized, d.D2: ApprovalRequired, d.D3: Prohibited, d.D4: Prohibited},
	d.A3: {d.D1: Authorized, d.D2: Authorized, d.D3: ApprovalRequired, d.D4: ApprovalRequired},
	d.A4: {d.D1: Authorized, d.D2: Authorized, d.D3: Authorized, d.D4: ApprovalRequired},
	d.A5: {d.D1: Authorized, d.D2: Authorized, d.D3: Authorized, d.D4: Authorized},
}

// Cell returns the base matrix result for (level, typ).
func Cell(level d.AutonomyLevel, typ d.Type) (Result, bool) {
	row, ok := baseMatrix[level]
	if !ok {
		return "", false
	}
	r, ok := row[typ]
	return r, ok
}

// Rule describes one override for the matrix resource.
type Rule struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

type override struct {
	Rule
	applies func(typ d.Type, risk d.RiskLevel) bool
	reason  func(typ d.Type, risk d.RiskLevel) string
}

// overrides run in order. Each may only turn authorized into
// approval_required.
var overrides = []override{
	{
		Rule: Rule{
			ID:          "self_modification",
			Order:       1,
			Description: "D4 (self-modifying or self-extending) actions always require human approval.",
		},
		applies: func(typ d.Type, _ d.RiskLevel) bool { return typ == d.D4 },
		reason: func(d.Type, d.RiskLevel) string {
			return "D4 self-modifying action requires human approval regardless of autonomy level"
		},
	},
	{
		Rule: Rule{
			ID:          "risk_escalation",
			Order:       2,
			Description: "Risk level R3 or R4 escalates any authorized action to approval_required.",
		},
		applies: func(_ d.Type, risk d.RiskLevel) bool { return risk.Escalating() },
		reason: func(_ d.Type, risk d.RiskLevel) string {
			return fmt.Sprintf("risk level %s triggers the R3/R4 escalation rule: human approval required", risk)
		},
	},
}

// Rules lists the override rules in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(overrides))
	for i, o := range overrides {
		out[i] = o.Rule
	}
	return out
}

// Decision is the full authorization response.
type Decision struct {
	Result          Result   `json:"result"`
	BaseResult      Result   `json:"base_result"`
	OverrideApplied bool     `json:"override_applied"`
	Reasons         []string `json:"reasons"`
	MatrixCell      string   `json:"matrix_cell"`
	AutonomyLevel   string   `json:"autonomy_level"`
	DecisionType    string   `json:"decision_type"`
	RiskLevel       string   `json:"risk_level,omitempty"`
}

// Evaluate reads the base cell for (level, typ) and applies the overrides.
// risk may be empty. It never turns a stricter result into a looser one.
func Evaluate(level d.AutonomyLevel, typ d.Type, risk d.RiskLevel) (Decision, error) {
	if risk != "" && !risk.Valid() {
		return Decision{}, errkind.E(errkind.ErrValidation, "invalid risk level %q", risk)
	}
	base, ok := Cell(level, typ)
	if !ok {
		return Decision{}, errkind.E(errkind.ErrValidation, "no matrix entry for autonomy level %q and decision type %q", level, typ)
	}

	dec := Decision{
		Result:        base,
		BaseResult:    base,
		Reasons:       []string{},
		MatrixCell:    fmt.Sprintf("%s × %s → %s", level, typ, base),
		AutonomyLevel: string(level),
		DecisionType:  string(typ),
		RiskLevel:     string(risk),
	}
	for _, o := range overrides {
		if dec.Result != Authorized || !o.applies(typ, risk) {
			continue
		}
		dec.Result = ApprovalRequired
		dec.OverrideApplied = true
		dec.Reasons = append(dec.Reasons, o.reason(typ, risk))
	}
	return dec, nil
}

// MatrixDump is the serialisable form of the whole table and its overrides.
type MatrixDump struct {
	AutonomyLevels []string                     `json:"autonomy_levels"`
	DecisionTypes  []string                     `json:"decision_types"`
	Matrix         map[string]map[string]Result `json:"matrix"`
	Overrides      []Rule                       `json:"overrides"`
}

// Dump renders the matrix for the matrix resource.
func Dump() MatrixDump {
	m := make(map[string]map[string]Result, len(baseMatrix))
	for level, row := range baseMatrix {
		cells := make(map[string]Result, len(row))
		for typ, r := range row {
			cells[string(typ)] = r
		}
		m[string(level)] = cells
	}
	return MatrixDump{
		AutonomyLevels: d.Strings(d.AutonomyLevels),
		DecisionTypes:  d.Strings(d.Types),
		Matrix:         m,
		Overrides:      Rules(),
	}
}
