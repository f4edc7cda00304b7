// Package policy stores organization-defined declarative rules and evaluates
// proposed decisions against them.
package policy

import (
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
)

// Requirement is the outcome a matching policy demands.
type Requirement string

const (
	RequireHumanApproval Requirement = "human_approval"
	RequireProhibited    Requirement = "prohibited"
)

// Valid reports whether r is a known requirement.
func (r Requirement) Valid() bool {
	return r == RequireHumanApproval || r == RequireProhibited
}

// Rule is the stored form of a policy rule: a condition map and the outcome
// it demands when every condition matches.
type Rule struct {
	Conditions map[string]any `json:"conditions" yaml:"conditions"`
	Requires   Requirement    `json:"requires" yaml:"requires"`
}

// Policy is an organization-scoped declarative rule.
type Policy struct {
	ID                string    `json:"-"`
	OrganizationID    string    `json:"organization_id"`
	PolicyID          string    `json:"policy_id"`
	Name              string    `json:"name"`
	Category          string    `json:"category,omitempty"`
	Severity          string    `json:"severity,omitempty"`
	Rule              Rule      `json:"rule"`
	RegulatoryMapping []string  `json:"regulatory_mapping"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Subject is the decision being checked.
type Subject struct {
	DecisionType decision.Type
	RiskLevel    decision.RiskLevel
	Context      map[string]any
}

// Violation names a policy whose requirement blocks autonomous execution.
type Violation struct {
	PolicyID    string      `json:"policy_id"`
	Name        string      `json:"name"`
	Requirement Requirement `json:"requirement"`
	Severity    string      `json:"severity,omitempty"`
}

// Evaluation is the result of checking a subject against every active policy.
type Evaluation struct {
	Compliant           bool        `json:"compliant"`
	Violations          []Violation `json:"violations"`
	ApplicablePolicyIDs []string    `json:"applicable_policy_ids"`
}
