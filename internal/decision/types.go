// Package decision defines the ADP vocabulary (autonomy levels, decision
// types, risk levels, reversibility) and the pure classifier built on it.
package decision

import "github.com/fbromtl/gouvernance-sub001/internal/errkind"

// AutonomyLevel is the degree of self-directed authority granted to an agent.
type AutonomyLevel string

const (
	A1 AutonomyLevel = "A1"
	A2 AutonomyLevel = "A2"
	A3 AutonomyLevel = "A3"
	A4 AutonomyLevel = "A4"
	A5 AutonomyLevel = "A5"
)

// AutonomyLevels lists every level from least to most autonomous.
var AutonomyLevels = []AutonomyLevel{A1, A2, A3, A4, A5}

// Type is the consequence class of an action. D4 marks self-modifying actions.
type Type string

const (
	D1 Type = "D1"
	D2 Type = "D2"
	D3 Type = "D3"
	D4 Type = "D4"
)

// Types lists every decision type in increasing consequence.
var Types = []Type{D1, D2, D3, D4}

// RiskLevel is the ordinal severity of potential harm. The zero value means
// "not supplied" and ranks below R1.
type RiskLevel string

const (
	R1 RiskLevel = "R1"
	R2 RiskLevel = "R2"
	R3 RiskLevel = "R3"
	R4 RiskLevel = "R4"
)

// RiskLevels lists every risk level in its total order.
var RiskLevels = []RiskLevel{R1, R2, R3, R4}

// Reversibility says whether an action's effects can be undone.
type Reversibility string

const (
	Total        Reversibility = "total"
	Partial      Reversibility = "partial"
	Irreversible Reversibility = "irreversible"
)

// Reversibilities lists every reversibility value.
var Reversibilities = []Reversibility{Total, Partial, Irreversible}

// Valid reports whether l is one of A1..A5.
func (l AutonomyLevel) Valid() bool { return contains(AutonomyLevels, l) }

// Valid reports whether t is one of D1..D4.
func (t Type) Valid() bool { return contains(Types, t) }

// Valid reports whether r is one of R1..R4.
func (r RiskLevel) Valid() bool { return contains(RiskLevels, r) }

// Valid reports whether r is total, partial or irreversible.
func (r Reversibility) Valid() bool { return contains(Reversibilities, r) }

// Rank is the position of r in R1<R2<R3<R4, starting at 1. An empty or
// unknown level ranks 0.
func (r RiskLevel) Rank() int {
	for i, v := range RiskLevels {
		if v == r {
			return i + 1
		}
	}
	return 0
}

// AtLeast reports whether r is a known level ranked at or above min. This is
// the only risk comparison in the module; authorization overrides and policy
// thresholds both go through it.
func (r RiskLevel) AtLeast(min RiskLevel) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// Escalating reports whether r is high enough (R3 or above) to force human
// review.
func (r RiskLevel) Escalating() bool { return r.AtLeast(R3) }

// ParseAutonomyLevel validates s as an autonomy level.
func ParseAutonomyLevel(s string) (AutonomyLevel, error) {
	l := AutonomyLevel(s)
	if !l.Valid() {
		return "", errkind.E(errkind.ErrValidation, "invalid autonomy level %q: must be one of A1..A5", s)
	}
	return l, nil
}

// ParseType validates s as a decision type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", errkind.E(errkind.ErrValidation, "invalid decision type %q: must be one of D1..D4", s)
	}
	return t, nil
}

// ParseRiskLevel validates s as a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if !r.Valid() {
		return "", errkind.E(errkind.ErrValidation, "invalid risk level %q: must be one of R1..R4", s)
	}
	return r, nil
}

// ParseOptionalRiskLevel is ParseRiskLevel that accepts "" as "not supplied".
func ParseOptionalRiskLevel(s string) (RiskLevel, error) {
	if s == "" {
		return "", nil
	}
	return ParseRiskLevel(s)
}

// ParseReversibility validates s as a reversibility value.
func ParseReversibility(s string) (Reversibility, error) {
	r := Reversibility(s)
	if !r.Valid() {
		return "", errkind.E(errkind.ErrValidation, "invalid reversibility %q: must be one of total, partial, irreversible", s)
	}
	return r, nil
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Strings renders an enum slice as plain strings.
func Strings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func (l AutonomyLevel) String() string { return string(l) }
func (t Type) String() string          { return string(t) }

// String renders r, or "unspecified" for the empty level.
func (r RiskLevel) String() string {
	if r == "" {
		return "unspecified"
	}
	return string(r)
}
