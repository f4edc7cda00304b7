package trace

import (
	"fmt"
	"strings"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
)

// ValidationResult is the outcome of a static trace check.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks the shape of a trace-shaped payload without storing it.
// Missing human-readable fields are warnings, everything else is an error.
func Validate(record map[string]any) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	fail := func(format string, args ...any) { res.Errors = append(res.Errors, fmt.Sprintf(format, args...)) }

	checkEnum(record, "event_type", func(s string) bool { return EventType(s).Valid() }, fail)

	raw, present := record["decision"]
	meta, isObject := raw.(map[string]any)
	switch {
	case !present || raw == nil:
		fail("decision is required")
	case !isObject:
		fail("decision must be an object")
	default:
		checkEnum(meta, "decision.type", func(s string) bool { return decision.Type(s).Valid() }, fail)
		checkEnum(meta, "decision.risk_level", func(s string) bool { return decision.RiskLevel(s).Valid() }, fail)
		checkEnum(meta, "decision.reversibility", func(s string) bool { return decision.Reversibility(s).Valid() }, fail)
		for _, f := range []string{"description", "reasoning"} {
			if s, _ := meta[f].(string); s == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("decision.%s is missing; auditors rely on it", f))
			}
		}
	}

	for _, f := range []string{"event_hash", "previous_hash"} {
		v, ok := record[f]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString || !isHexDigest(s) {
			fail("%s must be a 64-character lower-case hex SHA-256 digest", f)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkEnum validates a required string field. Dotted names address the
// last segment within m.
func checkEnum(m map[string]any, name string, valid func(string) bool, fail func(string, ...any)) {
	key := name[strings.LastIndex(name, ".")+1:]
	v, ok := m[key]
	if !ok || v == nil {
		fail("%s is required", name)
		return
	}
	s, isString := v.(string)
	if !isString || !valid(s) {
		fail("%s has invalid value %v", name, v)
	}
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
