// Package credential issues and redeems single-use INVITE/RESET tokens.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backoffice/backend/internal/apperr"
	"backoffice/backend/internal/credential/domain"
	"backoffice/backend/internal/credential/repository"
	"backoffice/backend/internal/security"
	userdomain "backoffice/backend/internal/user/domain"
)

// UserReader loads the account a token belongs to.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Store issues tokens (returning the plaintext once) and consumes them at most once.
type Store struct {
	tokens repository.Repository
	users  UserReader
	now    func() time.Time
}

// NewStore returns a Store. now defaults to time.Now.
func NewStore(tokens repository.Repository, users UserReader, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{tokens: tokens, users: users, now: now}
}

// Issue creates a token for userID valid for ttl and returns its plaintext with the stored record.
// ttl 0 yields a token that is already expired.
func (s *Store) Issue(ctx context.Context, userID string, purpose domain.Purpose, ttl time.Duration) (string, *domain.Token, error) {
	if userID == "" {
		return "", nil, apperr.Validation("user id is required")
	}
	if !purpose.Valid() {
		return "", nil, apperr.Validation("unknown token purpose %q", purpose)
	}
	if ttl < 0 {
		return "", nil, apperr.Validation("token ttl must not be negative")
	}
	plaintext, err := security.GenerateOpaqueToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	now := s.now().UTC()
	t := &domain.Token{
		ID:          uuid.NewString(),
		UserID:      userID,
		Purpose:     purpose,
		TokenDigest: security.DigestToken(plaintext),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}
	return plaintext, t, nil
}

// Consume redeems plaintext and returns the owning user's credential state. It fails with
// ErrTokenNotFound, ErrTokenAlreadyUsed or ErrTokenExpired, checked in that order.
func (s *Store) Consume(ctx context.Context, plaintext string) (*userdomain.User, error) {
	if plaintext == "" {
		return nil, domain.ErrTokenNotFound
	}
	digest := security.DigestToken(plaintext)
	t, err := s.tokens.Consume(ctx, digest, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if t == nil {
		return nil, s.classify(ctx, digest)
	}
	u, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("load token owner: %w", err)
	}
	if u == nil {
		return nil, domain.ErrTokenNotFound
	}
	return u, nil
}

// classify explains why a conditional consume matched no row.
func (s *Store) classify(ctx context.Context, digest string) error {
	t, err := s.tokens.GetByDigest(ctx, digest)
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	switch {
	case t == nil:
		return domain.ErrTokenNotFound
	case t.Consumed():
		return domain.ErrTokenAlreadyUsed
	default:
		return domain.ErrTokenExpired
	}
}

// Lookup returns the stored record for plaintext without consuming it.
func (s *Store) Lookup(ctx context.Context, plaintext string) (*domain.Token, error) {
	t, err := s.tokens.GetByDigest(ctx, security.DigestToken(plaintext))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTokenNotFound
	}
	return t, nil
}

// Purge deletes tokens that expired or were consumed more than retention ago.
func (s *Store) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC().Add(-retention))
}
