package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/decision"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// errInvalidCredential is the single answer for every failed authentication:
// unknown key, revoked key and inactive agent are indistinguishable.
var errInvalidCredential = errkind.E(errkind.ErrUnauthenticated, "invalid or revoked credential")

// Store provides agent registration and credential operations.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: database, logger: logger}
}

func validateRegister(req RegisterRequest) error {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return errkind.E(errkind.ErrValidation, "organization_id is required")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return errkind.E(errkind.ErrValidation, "agent_id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errkind.E(errkind.ErrValidation, "name is required")
	}
	if !req.AutonomyLevel.Valid() {
		return errkind.E(errkind.ErrValidation, "invalid autonomy level %q: must be one of A1..A5", req.AutonomyLevel)
	}
	for _, t := range req.AllowedDecisionTypes {
		if !t.Valid() {
			return errkind.E(errkind.ErrValidation, "invalid allowed decision type %q", t)
		}
	}
	if req.MaxRiskLevel != "" && !req.MaxRiskLevel.Valid() {
		return errkind.E(errkind.ErrValidation, "invalid max risk level %q", req.MaxRiskLevel)
	}
	return nil
}

// Register creates an active agent and its first credential in one
// transaction. A duplicate agent id within the organization is a conflict and
// leaves nothing behind.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if err := validateRegister(req); err != nil {
		return nil, err
	}
	allowed := req.AllowedDecisionTypes
	if len(allowed) == 0 {
		allowed = append([]decision.Type(nil), decision.Types...)
	}
	allowedJSON, err := json.Marshal(allowed)
	if err != nil {
		return nil, fmt.Errorf("marshalling allowed decision types: %w", err)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "issuing credential", err)
	}

	now := time.Now().UTC()
	agent := Agent{
		ID:                   uuid.NewString(),
		OrganizationID:       req.OrganizationID,
		AgentID:              req.AgentID,
		Name:                 req.Name,
		Description:          req.Description,
		AutonomyLevel:        req.AutonomyLevel,
		AllowedDecisionTypes: allowed,
		MaxRiskLevel:         req.MaxRiskLevel,
		Owner:                req.Owner,
		Status:               StatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "beginning registration", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (
			id, organization_id, agent_id, name, description, autonomy_level,
			allowed_decision_types, max_risk_level, owner, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.OrganizationID, agent.AgentID, agent.Name, agent.Description,
		string(agent.AutonomyLevel), string(allowedJSON), string(agent.MaxRiskLevel),
		agent.Owner, string(agent.Status), db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errkind.E(errkind.ErrConflict, "agent %q already exists in this organization", req.AgentID)
		}
		return nil, errkind.Wrap(errkind.ErrPersistence, "inserting agent", err)
	}

	if err := insertCredential(ctx, tx, agent.ID, secret, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "committing registration", err)
	}

	s.logger.Info("agent registered",
		"organization", agent.OrganizationID,
		"agent", agent.AgentID,
		"autonomy_level", agent.AutonomyLevel,
		"credential", secret,
	)
	return &Registration{Agent: agent, Secret: secret}, nil
}

func insertCredential(ctx context.Context, tx *sql.Tx, agentRef string, secret IssuedSecret, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_credentials (id, agent_ref, secret_hash, prefix, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), agentRef, HashSecret(secret.Reveal()), secret.Prefix(), db.FormatTime(now),
	)
	if err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "inserting credential", err)
	}
	return nil
}

// Authenticate resolves a raw secret to its agent. It requires a live
// credential and an active agent, and records the use.
func (s *Store) Authenticate(ctx context.Context, raw string) (*AuthContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errInvalidCredential
	}

	var (
		credID string
		ac     AuthContext
		level  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, a.id, a.organization_id, a.agent_id, a.autonomy_level
		FROM agent_credentials c
		JOIN agents a ON a.id = c.agent_ref
		WHERE c.secret_hash = ? AND c.revoked_at IS NULL AND a.status = 'active'`,
		HashSecret(raw),
	).Scan(&credID, &ac.AgentRef, &ac.OrganizationID, &ac.AgentID, &level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errInvalidCredential
		}
		return nil, errkind.Wrap(errkind.ErrPersistence, "looking up credential", err)
	}
	ac.AutonomyLevel = decision.AutonomyLevel(level)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE agent_credentials SET last_used_at = ? WHERE id = ?`,
		db.FormatTime(time.Now()), credID,
	); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "recording credential use", err)
	}
	return &ac, nil
}

const agentColumns = `id, organization_id, agent_id, name, description, autonomy_level,
	allowed_decision_types, max_risk_level, owner, status, created_at, updated_at`

// Get returns one agent of an organization regardless of status.
func (s *Store) Get(ctx context.Context, organizationID, agentID string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE organization_id = ? AND agent_id = ?`,
		organizationID, agentID)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errkind.E(errkind.ErrNotFound, "agent %q not found", agentID)
		}
		return nil, errkind.Wrap(errkind.ErrPersistence, "getting agent", err)
	}
	return a, nil
}

// List returns every agent of an organization ordered by agent id.
func (s *Store) List(ctx context.Context, organizationID string) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE organization_id = ? ORDER BY agent_id`,
		organizationID)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing agents", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning agent", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Organizations returns every organization id that has at least one agent.
func (s *Store) Organizations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT organization_id FROM agents ORDER BY organization_id`)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing organizations", err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning organization", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SetStatus moves an agent between active and suspended, or revokes it.
// Revocation is terminal and also revokes every credential of the agent.
func (s *Store) SetStatus(ctx context.Context, organizationID, agentID string, status Status) error {
	if !status.Valid() {
		return errkind.E(errkind.ErrValidation, "invalid status %q", status)
	}
	a, err := s.Get(ctx, organizationID, agentID)
	if err != nil {
		return err
	}
	if a.Status == StatusRevoked && status != StatusRevoked {
		return errkind.E(errkind.ErrConflict, "agent %q is revoked and cannot be reactivated", agentID)
	}

	now := db.FormatTime(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "beginning status change", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, a.ID,
	); err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "updating agent status", err)
	}
	if status == StatusRevoked {
		if err := revokeAll(ctx, tx, a.ID, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "committing status change", err)
	}

	s.logger.Info("agent status changed",
		"organization", organizationID,
		"agent", agentID,
		"from", a.Status,
		"to", status,
	)
	return nil
}

// RotateCredential revokes every live key of an active agent and issues a
// new one.
func (s *Store) RotateCredential(ctx context.Context, organizationID, agentID string) (*Registration, error) {
	a, err := s.Get(ctx, organizationID, agentID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, errkind.E(errkind.ErrConflict, "agent %q is %s; only active agents can rotate credentials", agentID, a.Status)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "issuing credential", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "beginning rotation", err)
	}
	defer tx.Rollback()

	if err := revokeAll(ctx, tx, a.ID, db.FormatTime(now)); err != nil {
		return nil, err
	}
	if err := insertCredential(ctx, tx, a.ID, secret, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "committing rotation", err)
	}

	s.logger.Info("credential rotated", "organization", organizationID, "agent", agentID, "credential", secret)
	return &Registration{Agent: *a, Secret: secret}, nil
}

func revokeAll(ctx context.Context, tx *sql.Tx, agentRef, now string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_credentials SET revoked_at = ? WHERE agent_ref = ? AND revoked_at IS NULL`,
		now, agentRef,
	); err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "revoking credentials", err)
	}
	return nil
}

// Credentials lists the non-secret credential records of an agent.
func (s *Store) Credentials(ctx context.Context, organizationID, agentID string) ([]Credential, error) {
	a, err := s.Get(ctx, organizationID, agentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_ref, prefix, created_at, revoked_at, last_used_at
		FROM agent_credentials WHERE agent_ref = ? ORDER BY created_at`, a.ID)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing credentials", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var (
			c                 Credential
			created           string
			revoked, lastUsed sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.AgentRef, &c.Prefix, &created, &revoked, &lastUsed); err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning credential", err)
		}
		c.CreatedAt = db.ParseTime(created)
		if revoked.Valid {
			t := db.ParseTime(revoked.String)
			c.RevokedAt = &t
		}
		if lastUsed.Valid {
			t := db.ParseTime(lastUsed.String)
			c.LastUsedAt = &t
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(sc scanner) (*Agent, error) {
	var (
		a                      Agent
		level, maxRisk, status string
		allowedJSON            string
		created, updated       string
	)
	if err := sc.Scan(
		&a.ID, &a.OrganizationID, &a.AgentID, &a.Name, &a.Description, &level,
		&allowedJSON, &maxRisk, &a.Owner, &status, &created, &updated,
	); err != nil {
		return nil, err
	}
	a.AutonomyLevel = decision.AutonomyLevel(level)
	a.MaxRiskLevel = decision.RiskLevel(maxRisk)
	a.Status = Status(status)
	a.CreatedAt = db.ParseTime(created)
	a.UpdatedAt = db.ParseTime(updated)
	if err := json.Unmarshal([]byte(allowedJSON), &a.AllowedDecisionTypes); err != nil {
		a.AllowedDecisionTypes = nil
	}
	return &a, nil
}
