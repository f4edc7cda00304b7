// Package trace implements the append-only, hash-chained decision log.
//
// Every (organization, agent) pair owns one chain. Each record carries the
// event hash of its predecessor and a SHA-256 digest over its own canonical
// content, so altering history without rewriting every later record breaks
// the linkage. The package offers no update or delete.
package trace

import (
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/decision"
)

// EventType is the kind of event a trace records.
type EventType string

const (
	EventDecision   EventType = "decision"
	EventApproval   EventType = "approval"
	EventEscalation EventType = "escalation"
)

// EventTypes lists every event type.
var EventTypes = []EventType{EventDecision, EventApproval, EventEscalation}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	for _, v := range EventTypes {
		if v == e {
			return true
		}
	}
	return false
}

// DecisionMeta describes the decision being recorded.
type DecisionMeta struct {
	Type               decision.Type          `json:"type"`
	RiskLevel          decision.RiskLevel     `json:"risk_level,omitempty"`
	Reversibility      decision.Reversibility `json:"reversibility,omitempty"`
	ClassificationCode string                 `json:"classification_code,omitempty"`
	Description        string                 `json:"description,omitempty"`
	Reasoning          string                 `json:"reasoning,omitempty"`
}

// Trace is one stored chain record.
type Trace struct {
	TraceID        string         `json:"trace_id"`
	OrganizationID string         `json:"organization_id"`
	AgentID        string         `json:"agent_id"`
	Seq            int64          `json:"seq"`
	EventType      EventType      `json:"event_type"`
	Decision       DecisionMeta   `json:"decision"`
	Authorization  map[string]any `json:"authorization"`
	Context        map[string]any `json:"context"`
	PreviousHash   *string        `json:"previous_hash"`
	EventHash      string         `json:"event_hash"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Entry is the caller-supplied part of a new trace.
type Entry struct {
	OrganizationID string
	AgentID        string
	EventType      EventType
	Decision       DecisionMeta
	Authorization  map[string]any
	Context        map[string]any
}

// Receipt is returned for every successful append.
type Receipt struct {
	TraceID      string  `json:"trace_id"`
	EventHash    string  `json:"event_hash"`
	PreviousHash *string `json:"previous_hash"`
	ChainLength  int64   `json:"chain_length"`
}
