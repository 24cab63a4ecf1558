package repository

import (
	"context"
	"time"

	"backoffice/backend/internal/mfa/domain"
)

// Repository defines storage for pending login challenges.
type Repository interface {
	// Create stores c until c.ExpiresAt. c.ID must be set.
	Create(ctx context.Context, c *domain.LoginChallenge) error
	// GetByID returns the challenge for id, or nil if it does not exist or has expired.
	GetByID(ctx context.Context, id string) (*domain.LoginChallenge, error)
	// RecordFailure counts a wrong code against id. When the count reaches maxAttempts the
	// challenge is removed and exceeded is true. A missing or expired challenge is not an error.
	RecordFailure(ctx context.Context, id string, maxAttempts int) (exceeded bool, err error)
	// Delete removes the challenge and reports whether it was present. Only the caller that
	// observes deleted=true may treat the challenge as completed.
	Delete(ctx context.Context, id string) (deleted bool, err error)
}

const (
	// DefaultChallengeTTL bounds how long a password-verified login may wait for its second factor.
	DefaultChallengeTTL = 5 * time.Minute
	// DefaultMaxAttempts is the number of wrong codes after which a challenge is dropped.
	DefaultMaxAttempts = 5
)
