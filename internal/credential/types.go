// Package credential registers agents and issues and authenticates their API
// credentials. Raw secrets exist only in the value returned by registration
// or rotation; the store keeps a SHA-256 digest and a short lookup prefix.
package credential

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// Agent is an identity registered by an organization.
type Agent struct {
	ID                   string                 `json:"-"`
	OrganizationID       string                 `json:"organization_id"`
	AgentID              string                 `json:"agent_id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	AutonomyLevel        decision.AutonomyLevel `json:"autonomy_level"`
	AllowedDecisionTypes []decision.Type        `json:"allowed_decision_types"`
	MaxRiskLevel         decision.RiskLevel     `json:"max_risk_level,omitempty"`
	Owner                string                 `json:"owner,omitempty"`
	Status               Status                 `json:"status"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// Credential is the persisted, non-secret view of an issued key.
type Credential struct {
	ID         string     `json:"id"`
	AgentRef   string     `json:"-"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// RegisterRequest carries the attributes of a new agent.
type RegisterRequest struct {
	OrganizationID       string
	AgentID              string
	Name                 string
	Description          string
	AutonomyLevel        decision.AutonomyLevel
	AllowedDecisionTypes []decision.Type
	MaxRiskLevel         decision.RiskLevel
	Owner                string
}

// Registration is returned exactly once per issued key.
type Registration struct {
	Agent  Agent
	Secret IssuedSecret
}

// AuthContext is the identity resolved from a presented secret.
type AuthContext struct {
	OrganizationID string
	AgentID        string
	AgentRef       string
	AutonomyLevel  decision.AutonomyLevel
}

// IssuedSecret holds a freshly minted raw key. Every formatting path redacts
// it; Reveal is the only way to read the value.
type IssuedSecret struct {
	value string
}

// Reveal returns the raw secret. Call it once, when writing the registration
// response.
func (s IssuedSecret) Reveal() string { return s.value }

// Prefix returns the non-secret lookup prefix of the key.
func (s IssuedSecret) Prefix() string { return prefixOf(s.value) }

// String redacts the secret.
func (s IssuedSecret) String() string {
	if s.value == "" {
		return ""
	}
	return s.Prefix() + "…[redacted]"
}

// GoString redacts the secret for %#v.
func (s IssuedSecret) GoString() string { return "credential.IssuedSecret{" + s.String() + "}" }

// LogValue keeps the secret out of slog output.
func (s IssuedSecret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// MarshalJSON redacts the secret so it cannot leak through a generic encoder.
func (s IssuedSecret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
