package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

// Store persists organization policies.
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

// Add registers a new active policy. The rule must compile; a duplicate
// policy id within the organization is a conflict.
func (s *Store) Add(ctx context.Context, p Policy) (*Policy, error) {
	p.OrganizationID = strings.TrimSpace(p.OrganizationID)
	p.PolicyID = strings.TrimSpace(p.PolicyID)
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.OrganizationID == "":
		return nil, errkind.E(errkind.ErrValidation, "organization_id is required")
	case p.PolicyID == "":
		return nil, errkind.E(errkind.ErrValidation, "policy_id is required")
	case p.Name == "":
		return nil, errkind.E(errkind.ErrValidation, "name is required")
	}
	if _, err := Compile(p.Rule); err != nil {
		return nil, err
	}
	if p.Rule.Conditions == nil {
		p.Rule.Conditions = map[string]any{}
	}
	if p.RegulatoryMapping == nil {
		p.RegulatoryMapping = []string{}
	}

	ruleJSON, err := json.Marshal(p.Rule)
	if err != nil {
		return nil, errkind.E(errkind.ErrValidation, "rule is not representable as JSON: %v", err)
	}
	mappingJSON, err := json.Marshal(p.RegulatoryMapping)
	if err != nil {
		return nil, fmt.Errorf("marshalling regulatory mapping: %w", err)
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (
			id, organization_id, policy_id, name, category, severity, rule,
			regulatory_mapping, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		p.ID, p.OrganizationID, p.PolicyID, p.Name, p.Category, p.Severity,
		string(ruleJSON), string(mappingJSON), db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errkind.E(errkind.ErrConflict, "policy %q already exists in this organization", p.PolicyID)
		}
		return nil, errkind.Wrap(errkind.ErrPersistence, "inserting policy", err)
	}

	s.logger.Info("policy added",
		"organization", p.OrganizationID,
		"policy", p.PolicyID,
		"requires", p.Rule.Requires,
	)
	return &p, nil
}

const policyColumns = `id, organization_id, policy_id, name, category, severity, rule,
	regulatory_mapping, active, created_at, updated_at`

// ListActive returns the organization's active policies ordered by policy id.
func (s *Store) ListActive(ctx context.Context, organizationID string) ([]Policy, error) {
	return s.list(ctx, `SELECT `+policyColumns+` FROM policies
		WHERE organization_id = ? AND active = 1 ORDER BY policy_id`, organizationID)
}

// List returns every policy of the organization, active or not.
func (s *Store) List(ctx context.Context, organizationID string) ([]Policy, error) {
	return s.list(ctx, `SELECT `+policyColumns+` FROM policies
		WHERE organization_id = ? ORDER BY policy_id`, organizationID)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing policies", err)
	}
	defer rows.Close()

	policies := []Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, errkind.Wrap(errkind.ErrPersistence, "scanning policy", err)
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.ErrPersistence, "listing policies", err)
	}
	return policies, nil
}

// SetActive enables or disables a policy.
func (s *Store) SetActive(ctx context.Context, organizationID, policyID string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET active = ?, updated_at = ? WHERE organization_id = ? AND policy_id = ?`,
		flag, db.FormatTime(time.Now()), organizationID, policyID)
	if err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "updating policy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "updating policy", err)
	}
	if n == 0 {
		return errkind.E(errkind.ErrNotFound, "policy %q not found", policyID)
	}
	s.logger.Info("policy toggled", "organization", organizationID, "policy", policyID, "active", active)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (*Policy, error) {
	var (
		p                 Policy
		ruleJSON, mapping string
		active            int
		created, updated  string
	)
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.PolicyID, &p.Name, &p.Category, &p.Severity,
		&ruleJSON, &mapping, &active, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ruleJSON), &p.Rule); err != nil {
		return nil, fmt.Errorf("decoding rule of policy %s: %w", p.PolicyID, err)
	}
	if err := json.Unmarshal([]byte(mapping), &p.RegulatoryMapping); err != nil {
		p.RegulatoryMapping = []string{}
	}
	p.Active = active == 1
	p.CreatedAt = db.ParseTime(created)
	p.UpdatedAt = db.ParseTime(updated)
	return &p, nil
}
