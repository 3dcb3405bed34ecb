package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (ripple.revocations).
//
// It is the shared-cache deployment mode: multiple server instances consult
// the same revocation set. Backing-store failures surface as
// ErrStoreUnavailable so the Guard can apply the fail-closed policy.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "ripple").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("revocation: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("revocation: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed revocation store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "ripple"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("revocation: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "revocations")
}

// Revoke upserts the fingerprint, keeping the earliest revocation instant and
// the latest expiry.
func (s *PostgresStore) Revoke(ctx context.Context, fingerprint, reason string, expiresAt time.Time) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return ErrEmptyFingerprint
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (fingerprint, reason, revoked_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (fingerprint) DO UPDATE
		SET expires_at = GREATEST(`+s.table()+`.expires_at, EXCLUDED.expires_at)
	`, fingerprint, reason, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked checks membership; expiry is evaluated in the query, not by sweep
// timing.
func (s *PostgresStore) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM `+s.table()+`
		WHERE fingerprint = $1 AND expires_at > now()
	`, fingerprint).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return true, nil
}

// Sweep deletes expired entries.
func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+` WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- identifier hygiene ----

func isValidPGIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func pgIdent(schema, table string) string {
	return schema + "." + table
}
