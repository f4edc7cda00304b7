// Package session resolves end-user session tokens to the user's
// organization. It stands in for the external identity provider and is only
// consulted by agent registration.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

var errInvalidSession = errkind.E(errkind.ErrUnauthenticated, "invalid or expired session")

// Principal is the end user behind a session.
type Principal struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email,omitempty"`
}

// Resolver maps a session token to a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// Store keeps user profiles and hashed session tokens.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// UpsertProfile records which organization a user belongs to.
func (s *Store) UpsertProfile(ctx context.Context, p Principal) error {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.OrganizationID) == "" {
		return errkind.E(errkind.ErrValidation, "user_id and organization_id are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, organization_id, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET organization_id = excluded.organization_id, email = excluded.email`,
		p.UserID, p.OrganizationID, p.Email, db.FormatTime(time.Now()),
	)
	if err != nil {
		return errkind.Wrap(errkind.ErrPersistence, "saving user profile", err)
	}
	return nil
}

// Issue creates a session for an existing user and returns the raw token.
func (s *Store) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errkind.E(errkind.ErrValidation, "session ttl must be positive")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	token := "sess_" + base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		hashToken(token), userID, db.FormatTime(now), db.FormatTime(now.Add(ttl)),
	)
	if err != nil {
		return "", errkind.Wrap(errkind.ErrPersistence, "inserting session", err)
	}
	return token, nil
}

// Resolve returns the principal of a live session.
func (s *Store) Resolve(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errInvalidSession
	}
	var (
		p       Principal
		expires string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.user_id, p.organization_id, p.email, s.expires_at
		FROM user_sessions s
		JOIN user_profiles p ON p.user_id = s.user_id
		WHERE s.token_hash = ?`, hashToken(token),
	).Scan(&p.UserID, &p.OrganizationID, &p.Email, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errInvalidSession
		}
		return nil, errkind.Wrap(errkind.ErrPersistence, "resolving session", err)
	}
	if !time.Now().Before(db.ParseTime(expires)) {
		return nil, errInvalidSession
	}
	return &p, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
