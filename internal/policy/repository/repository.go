package repository

import (
	"context"

	"backoffice/backend/internal/policy/domain"
)

// Repository supplies operator policies. An empty result means the built-in default applies.
type Repository interface {
	GetEnabledPolicies(ctx context.Context) ([]*domain.Policy, error)
}
