package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads membership and credential data from PostgreSQL and
// persists receipts (ripple.conversation_members, ripple.credentials,
// ripple.receipts).
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// Option configures PostgresDirectory behavior.
type Option func(*PostgresDirectory) error

// WithSchema sets the DB schema used by the directory (default: "ripple").
func WithSchema(schema string) Option {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !isValidPGIdent(schema) {
			return errors.New("directory: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a directory backed by PostgreSQL.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...Option) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: "ripple"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return d, nil
}

// ConversationMembers implements Directory.
func (d *PostgresDirectory) ConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT principal_id FROM `+d.schema+`.conversation_members
		WHERE conversation_id = $1
		ORDER BY principal_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// PrincipalConversations implements Directory.
func (d *PostgresDirectory) PrincipalConversations(ctx context.Context, principalID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id FROM `+d.schema+`.conversation_members
		WHERE principal_id = $1
		ORDER BY conversation_id
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CredentialExpiry implements Directory.
func (d *PostgresDirectory) CredentialExpiry(ctx context.Context, fingerprint string) (time.Time, error) {
	var exp time.Time
	err := d.pool.QueryRow(ctx, `
		SELECT expires_at FROM `+d.schema+`.credentials
		WHERE fingerprint = $1
	`, fingerprint).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return exp, nil
}

// WriteReceipt implements ReceiptWriter. Receipts only ever move forward, so
// the upsert overwrites unconditionally; monotonicity is enforced upstream by
// the delivery router.
func (d *PostgresDirectory) WriteReceipt(ctx context.Context, envelopeID, recipientID string, state ReceiptState, at time.Time) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO `+d.schema+`.receipts (envelope_id, recipient_id, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (envelope_id, recipient_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, envelopeID, recipientID, string(state), at)
	return err
}

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
