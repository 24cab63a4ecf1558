package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"backoffice/backend/internal/credential/domain"
)

const tokenColumns = `id::text, user_id::text, purpose, token_digest, created_at, expires_at, consumed_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential token repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the token. The token must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credential_tokens (id, user_id, purpose, token_digest, created_at, expires_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`,
		t.ID, t.UserID, string(t.Purpose), t.TokenDigest, t.CreatedAt, t.ExpiresAt)
	return err
}

// GetByDigest returns the token for digest, or nil if not found.
func (r *PostgresRepository) GetByDigest(ctx context.Context, digest string) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM credential_tokens WHERE token_digest = $1`, digest))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Consume is a single conditional UPDATE; of any number of concurrent callers at most one
// gets a row back.
func (r *PostgresRepository) Consume(ctx context.Context, digest string, now time.Time) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `
		UPDATE credential_tokens SET consumed_at = $2
		WHERE token_digest = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING `+tokenColumns, digest, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM credential_tokens
		WHERE expires_at <= $1 OR (consumed_at IS NOT NULL AND consumed_at <= $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanToken(row *sql.Row) (*domain.Token, error) {
	var t domain.Token
	var purpose string
	var consumed sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &purpose, &t.TokenDigest, &t.CreatedAt, &t.ExpiresAt, &consumed); err != nil {
		return nil, err
	}
	t.Purpose = domain.Purpose(purpose)
	if consumed.Valid {
		c := consumed.Time
		t.ConsumedAt = &c
	}
	return &t, nil
}
