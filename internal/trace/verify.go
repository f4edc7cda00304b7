package trace

import (
	"context"
	"strings"
)

// VerifyOptions tunes a chain verification.
type VerifyOptions struct {
	// Limit caps the number of records inspected, oldest first. Zero uses
	// the store default; values above 10000 are clamped.
	Limit int
	// RecomputeHashes additionally recomputes every record's content digest
	// and compares it with the stored event hash.
	RecomputeHashes bool
}

// Verification is the outcome of a chain check.
type Verification struct {
	Valid           bool    `json:"valid"`
	ChainLength     int     `json:"chain_length"`
	FirstTraceID    *string `json:"first_trace_id"`
	LastTraceID     *string `json:"last_trace_id"`
	BrokenAtTraceID *string `json:"broken_at_trace_id"`
	Reason          string  `json:"reason,omitempty"`
}

// Verify walks one agent's chain oldest first. The first record must have
// no previous hash and every later record must point at its predecessor's
// event hash. It reports the first record where either check fails.
func (s *Store) Verify(ctx context.Context, organizationID, agentID string, opts VerifyOptions) (*Verification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.verifyLimit
	}
	limit = min(limit, maxVerifyLimit)

	stored, err := s.chain(ctx, organizationID, agentID, limit)
	if err != nil {
		return nil, err
	}
	v := verifyChain(stored, opts.RecomputeHashes)
	if !v.Valid {
		s.logger.Warn("trace chain broken",
			"organization", organizationID,
			"agent", agentID,
			"broken_at", *v.BrokenAtTraceID,
			"reason", v.Reason,
		)
	}
	return v, nil
}

func verifyChain(stored []storedTrace, recompute bool) *Verification {
	v := &Verification{Valid: true, ChainLength: len(stored)}
	if len(stored) == 0 {
		return v
	}
	first, last := stored[0].content.TraceID, stored[len(stored)-1].content.TraceID
	v.FirstTraceID, v.LastTraceID = &first, &last

	for i, st := range stored {
		reason := ""
		switch {
		case i == 0 && st.content.PreviousHash != nil:
			reason = "genesis record has a previous hash"
		case i > 0 && (st.content.PreviousHash == nil || *st.content.PreviousHash != stored[i-1].eventHash):
			reason = "previous hash does not match the preceding record"
		case recompute:
			if h, err := st.content.digest(); err != nil || !strings.EqualFold(h, st.eventHash) {
				reason = "event hash does not match the record content"
			}
		}
		if reason != "" {
			id := st.content.TraceID
			v.Valid = false
			v.BrokenAtTraceID = &id
			v.Reason = reason
			return v
		}
	}
	return v
}
