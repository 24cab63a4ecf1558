package repository

import (
	"context"
	"time"

	"backoffice/backend/internal/credential/domain"
)

// Repository defines persistence for credential tokens, keyed by token digest.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	// GetByDigest returns the token with digest, or nil if not found.
	GetByDigest(ctx context.Context, digest string) (*domain.Token, error)
	// Consume marks the token consumed at now if it is unconsumed and unexpired, as one atomic
	// step. It returns the updated token, or nil when no token matched those conditions.
	Consume(ctx context.Context, digest string, now time.Time) (*domain.Token, error)
	// DeleteExpired removes tokens that expired or were consumed before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
