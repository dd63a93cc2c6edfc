package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by PostgreSQL. The users table carries a
// unique index on subject_id, which is the authoritative guard against
// duplicate provisioning across processes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			subject_id TEXT NOT NULL UNIQUE,
			attributes JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// FindBySubject returns the user for the subject identifier, or ErrNotFound.
func (s *PostgresStore) FindBySubject(ctx context.Context, subjectID string) (*User, error) {
	var (
		user      User
		attrsJSON []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, attributes, created_at
		FROM users
		WHERE subject_id = $1
	`, subjectID).Scan(&user.ID, &user.SubjectID, &attrsJSON, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &user.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user attributes: %w", err)
		}
	}

	return &user, nil
}

// Create inserts a new user. ON CONFLICT DO NOTHING means a lost race
// returns no row; that case surfaces as ErrDuplicateSubject so the resolver
// can fall back to a lookup.
func (s *PostgresStore) Create(ctx context.Context, profile *Profile) (*User, error) {
	var attrsJSON []byte
	if len(profile.Attributes) > 0 {
		var err error
		attrsJSON, err = json.Marshal(profile.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile attributes: %w", err)
		}
	}

	user := &User{SubjectID: profile.SubjectID, Attributes: profile.Clone().Attributes}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (subject_id, attributes, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (subject_id) DO NOTHING
		RETURNING id, created_at
	`, profile.SubjectID, attrsJSON).Scan(&user.ID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDuplicateSubject
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}
