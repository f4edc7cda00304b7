package decision

import "fmt"

// Classification is the derived, never-persisted view of a proposed action.
type Classification struct {
	Code               string `json:"classification_code"`
	RiskOverride       bool   `json:"risk_override"`
	RequiresEscalation bool   `json:"requires_escalation"`
}

// Classify maps an action's attributes to its classification code. It has no
// side effects; identical inputs always yield identical output.
func Classify(t Type, risk RiskLevel, rev Reversibility) (Classification, error) {
	if _, err := ParseType(string(t)); err != nil {
		return Classification{}, err
	}
	if _, err := ParseRiskLevel(string(risk)); err != nil {
		return Classification{}, err
	}
	if _, err := ParseReversibility(string(rev)); err != nil {
		return Classification{}, err
	}

	override := risk.Escalating()
	return Classification{
		Code:               fmt.Sprintf("%s-%s-%s", t, risk, rev),
		RiskOverride:       override,
		RequiresEscalation: t == D4 || override,
	}, nil
}
