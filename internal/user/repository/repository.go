package repository

import (
	"context"
	"errors"
	"time"

	"backoffice/backend/internal/user/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for user credential state. Conditional updates report
// applied=false when the row does not match the expected state; callers decide what that means.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetPassword stores the digest and marks the email verified in one statement.
	SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) (applied bool, err error)
	// SetPendingTwoFactorSecret stores secret only when no secret is present and 2FA is off.
	SetPendingTwoFactorSecret(ctx context.Context, userID, secret string, at time.Time) (applied bool, err error)
	// EnableTwoFactor sets the flag only while the stored secret equals secret and 2FA is off.
	EnableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (applied bool, err error)
	// DisableTwoFactor clears flag and secret only while the stored secret equals secret.
	DisableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (applied bool, err error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}
