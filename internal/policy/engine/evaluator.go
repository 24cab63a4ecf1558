package engine

import (
	"context"

	userdomain "backoffice/backend/internal/user/domain"
)

// PasswordMinLengthFloor is the lowest minimum password length any policy may set.
const PasswordMinLengthFloor = 8

// CredentialPolicy is the outcome of evaluating the credential policy for one account.
type CredentialPolicy struct {
	Roles             []string
	MinPasswordLength int
}

// Evaluator evaluates credential policies using OPA or other engines.
type Evaluator interface {
	// EvaluateCredentials returns the session roles and password rules for user. user may be nil
	// when only password rules are needed.
	EvaluateCredentials(ctx context.Context, user *userdomain.User) (CredentialPolicy, error)
}
