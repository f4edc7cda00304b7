package policy

import (
	"encoding/json"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// Condition is one conjunct of a compiled rule. Each variant owns its own
// matching logic; adding a kind means adding a type, not a string branch in
// the evaluator.
type Condition interface {
	Kind() string
	Match(s Subject) bool
}

// DecisionTypeIn matches when the subject's type is in the set.
type DecisionTypeIn struct {
	Types []decision.Type
}

func (DecisionTypeIn) Kind() string { return "decision_type_in" }

func (c DecisionTypeIn) Match(s Subject) bool {
	for _, t := range c.Types {
		if t == s.DecisionType {
			return true
		}
	}
	return false
}

// MinRiskLevel matches when the subject's risk is at or above Level. A
// subject without a risk level never matches.
type MinRiskLevel struct {
	Level decision.RiskLevel
}

func (MinRiskLevel) Kind() string { return "min_risk_level" }

func (c MinRiskLevel) Match(s Subject) bool { return s.RiskLevel.AtLeast(c.Level) }

// ContextFieldEquals matches when the caller context carries Field with a
// value equal to Value. Strings only equal strings and bools only bools;
// numbers of any Go kind compare by value.
type ContextFieldEquals struct {
	Field string
	Value any
}

func (ContextFieldEquals) Kind() string { return "context_field_equals" }

func (c ContextFieldEquals) Match(s Subject) bool {
	v, ok := s.Context[c.Field]
	if !ok {
		return false
	}
	return scalarEqual(v, c.Value)
}

// ContextFieldMatches matches when the caller context carries Field as a
// string matching the doublestar glob Pattern.
type ContextFieldMatches struct {
	Field   string
	Pattern string
}

func (ContextFieldMatches) Kind() string { return "context_field_matches" }

func (c ContextFieldMatches) Match(s Subject) bool {
	v, ok := s.Context[c.Field].(string)
	if !ok {
		return false
	}
	matched, err := doublestar.Match(c.Pattern, v)
	return err == nil && matched
}

// Compile turns a rule's condition map into typed conditions. Keys are
// processed in sorted order so the result is deterministic.
//
//	decision_type / decision_types   string or list  -> DecisionTypeIn
//	min_risk_level / risk_level_min  string          -> MinRiskLevel
//	context                          object          -> ContextFieldEquals per entry
//	context_match                    object of globs -> ContextFieldMatches per entry
//	any other key                    scalar          -> ContextFieldEquals on that key
func Compile(r Rule) ([]Condition, error) {
	if !r.Requires.Valid() {
		return nil, errkind.E(errkind.ErrValidation, "rule requires %q: must be human_approval or prohibited", r.Requires)
	}
	keys := make([]string, 0, len(r.Conditions))
	for k := range r.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []Condition
	for _, key := range keys {
		raw := r.Conditions[key]
		switch key {
		case "decision_type", "decision_types":
			c, err := compileTypes(raw)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		case "min_risk_level", "risk_level_min":
			s, ok := raw.(string)
			if !ok {
				return nil, errkind.E(errkind.ErrValidation, "condition %s must be a string", key)
			}
			level, err := decision.ParseRiskLevel(s)
			if err != nil {
				return nil, err
			}
			conds = append(conds, MinRiskLevel{Level: level})
		case "context":
			fields, err := objectOf(key, raw)
			if err != nil {
				return nil, err
			}
			for _, f := range sortedKeys(fields) {
				if !isScalar(fields[f]) {
					return nil, errkind.E(errkind.ErrValidation, "context.%s must be a string, number or boolean", f)
				}
				conds = append(conds, ContextFieldEquals{Field: f, Value: fields[f]})
			}
		case "context_match":
			fields, err := objectOf(key, raw)
			if err != nil {
				return nil, err
			}
			for _, f := range sortedKeys(fields) {
				pattern, ok := fields[f].(string)
				if !ok || !doublestar.ValidatePattern(pattern) {
					return nil, errkind.E(errkind.ErrValidation, "context_match.%s must be a valid glob pattern", f)
				}
				conds = append(conds, ContextFieldMatches{Field: f, Pattern: pattern})
			}
		default:
			if !isScalar(raw) {
				return nil, errkind.E(errkind.ErrValidation, "condition %q must be a string, number or boolean", key)
			}
			conds = append(conds, ContextFieldEquals{Field: key, Value: raw})
		}
	}
	return conds, nil
}

func compileTypes(raw any) (DecisionTypeIn, error) {
	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	case []string:
		names = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return DecisionTypeIn{}, errkind.E(errkind.ErrValidation, "decision_type entries must be strings")
			}
			names = append(names, s)
		}
	default:
		return DecisionTypeIn{}, errkind.E(errkind.ErrValidation, "decision_type must be a string or a list of strings")
	}
	if len(names) == 0 {
		return DecisionTypeIn{}, errkind.E(errkind.ErrValidation, "decision_type must not be empty")
	}
	c := DecisionTypeIn{}
	for _, n := range names {
		t, err := decision.ParseType(n)
		if err != nil {
			return DecisionTypeIn{}, err
		}
		c.Types = append(c.Types, t)
	}
	return c, nil
}

func objectOf(key string, raw any) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errkind.E(errkind.ErrValidation, "condition %s must be an object", key)
	}
	return m, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

// scalarEqual compares two scalars without crossing types. YAML rules carry
// ints while JSON rules and contexts carry float64 or json.Number.
func scalarEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	af, ok := toFloat(a)
	if !ok {
		return false
	}
	bf, ok := toFloat(b)
	return ok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
