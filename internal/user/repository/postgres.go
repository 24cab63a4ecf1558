package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"backoffice/backend/internal/user/domain"
)

const pgUniqueViolation = "23505"

const userColumns = `id::text, email, name, coalesce(password_hash, ''), email_verified,
	two_factor_enabled, coalesce(two_factor_secret, ''), last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id)
}

// GetByEmail returns the user with the given (normalized) email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, email_verified, two_factor_enabled,
			two_factor_secret, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.EmailVerified, u.TwoFactorEnabled,
		u.TwoFactorSecret, u.CreatedAt, u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PostgresRepository) SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error) {
	return r.execApplied(ctx, `
		UPDATE users SET password_hash = $2, email_verified = TRUE, updated_at = $3
		WHERE id = $1::uuid`, userID, passwordHash, at)
}

func (r *PostgresRepository) SetPendingTwoFactorSecret(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.execApplied(ctx, `
		UPDATE users SET two_factor_secret = $2, updated_at = $3
		WHERE id = $1::uuid AND two_factor_secret IS NULL AND NOT two_factor_enabled`, userID, secret, at)
}

func (r *PostgresRepository) EnableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.execApplied(ctx, `
		UPDATE users SET two_factor_enabled = TRUE, updated_at = $3
		WHERE id = $1::uuid AND two_factor_secret = $2 AND NOT two_factor_enabled`, userID, secret, at)
}

func (r *PostgresRepository) DisableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.execApplied(ctx, `
		UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = $3
		WHERE id = $1::uuid AND two_factor_secret = $2`, userID, secret, at)
}

// UpdateLastLogin records a successful login. A missing user is not an error.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1::uuid`, userID, at)
	return err
}

func (r *PostgresRepository) execApplied(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerified,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}
