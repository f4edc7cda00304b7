package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

const (
	defaultAppendRetries = 8
	defaultVerifyLimit   = 1000
	maxVerifyLimit       = 10000
	defaultRecentLimit   = 50
	maxRecentLimit       = 200
)

// Publisher receives every trace after it has been durably appended.
type Publisher interface {
	Publish(Trace)
}

// Store appends to and reads from the trace chains.
type Store struct {
	db          *db.DB
	logger      *slog.Logger
	retries     int
	verifyLimit int
	recentLimit int
	publisher   Publisher
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithAppendRetries bounds how many times an append re-reads the chain tip
// after losing a race with a concurrent writer.
func WithAppendRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithVerifyLimit sets the default number of records Verify inspects.
func WithVerifyLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.verifyLimit = min(n, maxVerifyLimit)
		}
	}
}

// WithRecentLimit sets how many traces Recent returns when the caller
// passes no limit.
func WithRecentLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.recentLimit = min(n, maxRecentLimit)
		}
	}
}

// WithPublisher attaches a receiver for appended traces, usually a Feed.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:          database,
		logger:      logger,
		retries:     defaultAppendRetries,
		verifyLimit: defaultVerifyLimit,
		recentLimit: defaultRecentLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateEntry(e Entry) error {
	switch {
	case strings.TrimSpace(e.OrganizationID) == "":
		return errkind.E(errkind.ErrValidation, "organization_id is required")
	case strings.TrimSpace(e.AgentID) == "":
		return errkind.E(errkind.ErrValidation, "agent_id is required")
	case !e.EventType.Valid():
		return errkind.E(errkind.ErrValidation, "invalid event type %q: must be decision, approval or escalation", e.EventType)
	case !e.Decision.Type.Valid():
		return errkind.E(errkind.ErrValidation, "invalid decision type %q", e.Decision.Type)
	case e.Decision.RiskLevel != "" && !e.Decision.RiskLevel.Valid():
		return errkind.E(errkind.ErrValidation, "invalid risk level %q", e.Decision.RiskLevel)
	case e.Decision.Reversibility != "" && !e.Decision.Reversibility.Valid():
		return errkind.E(errkind.ErrValidation, "invalid reversibility %q", e.Decision.Reversibility)
	}
	return nil
}

func marshalObject(v map[string]any, field string) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errkind.E(errkind.ErrValidation, "%s is not representable as JSON: %v", field, err)
	}
	return raw, nil
}

// Log appends e to its (organization, agent) chain and returns the new
// record's receipt.
//
// The insert is conditional on the chain tip read just before it: the
// UNIQUE(organization_id, agent_id, seq) constraint rejects a second record
// claiming the same position, in which case the tip is re-read and the
// record rebuilt. After the retry budget is spent the append fails with a
// conflict.
func (s *Store) Log(ctx context.Context, e Entry) (*Receipt, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	decisionJSON, err := json.Marshal(e.Decision)
	if err != nil {
		return nil, fmt.Errorf("marshalling decision metadata: %w", err)
	}
	authJSON, err := marshalObject(e.Authorization, "authorization")
	if err != nil {
		return nil, err
	}
	contextJSON, err := marshalObject(e.Context, "context")
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.retries; attempt++ {
		seq, tipHash, err := s.tip(ctx, e.OrganizationID, e.AgentID)
		if err != nil {
			return nil, err
		}

		content := hashedContent{
			TraceID:        uuid.NewString(),
			OrganizationID: e.OrganizationID,
			AgentID:        e.AgentID,
			Seq:            seq + 1,
			EventType:      e.EventType,
			Decision:       decisionJSON,
			Authorization:  authJSON,
			Context:        contextJSON,
			PreviousHash:   tipHash,
			CreatedAt:      db.FormatTime(s.now()),
		}
		hash, err := content.digest()
		if err != nil {
			return nil, err
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO traces (
				trace_id, organization_id, agent_id, seq, event_type, decision_meta,
				authorization_meta, context_data, previous_hash, event_hash, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			content.TraceID, content.OrganizationID, content.AgentID, content.Seq,
			string(content.EventType), string(decisionJSON), string(authJSON), string(contextJSON),
			nullable(tipHash), hash, content.CreatedAt,
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				s.logger.Debug("chain tip moved; retrying append",
					"organization", e.OrganizationID, "agent", e.AgentID, "attempt", attempt)
				continue
			}
			return nil, errkind.Wrap(errkind.ErrPersistence, "appending trace", err)
		}

		if s.publisher != nil {
			s.publisher.Publish(Trace{
				TraceID:        content.TraceID,
				OrganizationID: e.OrganizationID,
				AgentID:        e.AgentID,
				Seq:            content.Seq,
				EventType:      e.EventType,
				Decision:       e.Decision,
				Authorization:  nonNil(e.Authorization),
				Context:        nonNil(e.Context),
				PreviousHash:   tipHash,
				EventHash:      hash,
				CreatedAt:      db.ParseTime(content.CreatedAt),
			})
		}
		return &Receipt{
			TraceID:      content.TraceID,
			EventHash:    hash,
			PreviousHash: tipHash,
			ChainLength:  content.Seq,
		}, nil
	}

	s.logger.Warn("trace append gave up after repeated contention",
		"organization", e.OrganizationID, "agent", e.AgentID, "attempts", s.retries)
	return nil, errkind.E(errkind.ErrConflict, "chain for agent %q is under contention; retry the append", e.AgentID)
}

// tip returns the sequence number and event hash of the newest record in a
// chain, or (0, nil) for an empty chain.
func (s *Store) tip(ctx context.Context, organizationID, agentID string) (int64, *string, error) {
	var (
		seq  int64
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, event_hash FROM traces
		WHERE organization_id = ? AND agent_id = ?
		ORDER BY seq DESC LIMIT 1`,
		organizationID, agentID,
	).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, errkind.Wrap(errkind.ErrPersistence, "reading chain tip", err)
	}
	return seq, &hash, nil
}

const traceColumns = `trace_id, organization_id, agent_id, seq, event_type, decision_meta,
	authorization_meta, context_data, previous_hash, event_hash, created_at`

// storedTrace is a row as persisted, before decoding.
type storedTrace struct {
	content   hashedContent
	eventHash string
}

func scanStored(rows *sql.Rows) (storedTrace, error) {
	var (
		st                     storedTrace
		eventType              string
		decisionJSON, authJSON string
		contextJSON            string
		prev                   sql.NullString
	)
	c := &st.content
	if err := rows.Scan(&c.TraceID, &c.OrganizationID, &c.AgentID, &c.Seq, &eventType,
		&decisionJSON, &authJSON, &contextJSON, &prev, &st.eventHash, &c.CreatedAt); err != nil {
		return st, err
	}
	c.EventType = EventType(eventType)
	c.Decision = json.RawMessage(decisionJSON)
	c.Authorization = json.RawMessage(authJSON)
	c.Context = json.RawMessage(contextJSON)
	if prev.Valid {
		p := prev.String
		c.PreviousHash = &p
	}
	return st, nil
}

func (st storedTrace) decode() (Trace, error) {
	c := st.content
	t := Trace{
		TraceID:        c.TraceID,
		OrganizationID: c.OrganizationID,
		AgentID:        c.AgentID,
		Seq:            c.Seq,
		EventType:      c.EventType,
		PreviousHash:   c.PreviousHash,
		EventHash:      st.eventHash,
		CreatedAt:      db.ParseTime(c.CreatedAt),
	}
	if err := json.Unmarshal(c.Decision, &t.Decision); err != nil {
		return t, fmt.Errorf("decoding decision of trace %s: %w", c.TraceID, err)
	}
	if err := json.Unmarshal(c.Authorization, &t.Authorization); err != nil {
		return t, fmt.Errorf("decoding authorization of trace %s: %w", c.TraceID, err)
	}
	if err := json.Unmarshal(c.Context, &t.Context); err != nil {
		return t, fmt.Errorf("decoding context of trace %s: %w", c.TraceID, err)
	}
	t.Authorization = nonNil(t.Authorization)
	t.Context = nonNil(t.Context)
	return t, nil
}

func (s *Store) queryStored(ctx context.Context, query string, args ...any) ([]storedTrace, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "querying traces", err)
	}
	defer rows.Close()

	var out []storedTrace
	for rows.Next() {
		st, err := scanStored(rows)
		if err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning trace", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "querying traces", err)
	}
	return out, nil
}

func decodeAll(stored []storedTrace) ([]Trace, error) {
	traces := make([]Trace, 0, len(stored))
	for _, st := range stored {
		t, err := st.decode()
		if err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "decoding trace", err)
		}
		traces = append(traces, t)
	}
	return traces, nil
}

// RecentLimit applies the configured default and the ceiling for
// recent-trace reads.
func (s *Store) RecentLimit(limit int) int {
	if limit <= 0 {
		return s.recentLimit
	}
	return min(limit, maxRecentLimit)
}

// Recent returns the organization's newest traces across all agents, newest
// first.
func (s *Store) Recent(ctx context.Context, organizationID string, limit int) ([]Trace, error) {
	stored, err := s.queryStored(ctx, `SELECT `+traceColumns+` FROM traces
		WHERE organization_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, organizationID, s.RecentLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll(stored)
}

// Chain returns up to limit records of one agent's chain, oldest first.
func (s *Store) Chain(ctx context.Context, organizationID, agentID string, limit int) ([]Trace, error) {
	stored, err := s.chain(ctx, organizationID, agentID, limit)
	if err != nil {
		return nil, err
	}
	return decodeAll(stored)
}

func (s *Store) chain(ctx context.Context, organizationID, agentID string, limit int) ([]storedTrace, error) {
	return s.queryStored(ctx, `SELECT `+traceColumns+` FROM traces
		WHERE organization_id = ? AND agent_id = ?
		ORDER BY seq ASC
		LIMIT ?`, organizationID, agentID, limit)
}

// Latest returns the newest limit records of one agent's chain, oldest
// first. A non-positive limit uses the recent-trace default.
func (s *Store) Latest(ctx context.Context, organizationID, agentID string, limit int) ([]Trace, error) {
	stored, err := s.queryStored(ctx, `SELECT `+traceColumns+` FROM traces
		WHERE organization_id = ? AND agent_id = ?
		ORDER BY seq DESC
		LIMIT ?`, organizationID, agentID, s.RecentLimit(limit))
	if err != nil {
		return nil, err
	}
	slices.Reverse(stored)
	return decodeAll(stored)
}

// Length returns the number of records in one agent's chain.
func (s *Store) Length(ctx context.Context, organizationID, agentID string) (int, error) {
	seq, _, err := s.tip(ctx, organizationID, agentID)
	return int(seq), err
}

// Get returns one trace of the organization.
func (s *Store) Get(ctx context.Context, organizationID, traceID string) (*Trace, error) {
	stored, err := s.queryStored(ctx, `SELECT `+traceColumns+` FROM traces
		WHERE organization_id = ? AND trace_id = ?`, organizationID, traceID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, errkind.E(errkind.ErrNotFound, "trace %q not found", traceID)
	}
	t, err := stored[0].decode()
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "decoding trace", err)
	}
	return &t, nil
}

// Chains lists the agent ids of an organization that have at least one
// trace.
func (s *Store) Chains(ctx context.Context, organizationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT agent_id FROM traces WHERE organization_id = ? ORDER BY agent_id`,
		organizationID)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing chains", err)
	}
	defer rows.Close()

	agents := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning chain", err)
		}
		agents = append(agents, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing chains", err)
	}
	return agents, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
