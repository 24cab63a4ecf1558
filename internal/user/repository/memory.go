package repository

import (
	"context"
	"sync"
	"time"

	"backoffice/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository. Each conditional update is checked and applied
// under one lock, mirroring the single-statement updates of PostgresRepository.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.User), byEmail: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(id), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return r.copyOf(id), nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := domain.NormalizeEmail(u.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrDuplicateEmail
	}
	cp := *u
	cp.Email = email
	r.byID[u.ID] = &cp
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemoryRepository) SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error) {
	return r.update(userID, func(u *domain.User) bool {
		u.PasswordHash = passwordHash
		u.EmailVerified = true
		u.UpdatedAt = at
		return true
	}), nil
}

func (r *MemoryRepository) SetPendingTwoFactorSecret(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.update(userID, func(u *domain.User) bool {
		if u.TwoFactorSecret != "" || u.TwoFactorEnabled {
			return false
		}
		u.TwoFactorSecret = secret
		u.UpdatedAt = at
		return true
	}), nil
}

func (r *MemoryRepository) EnableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.update(userID, func(u *domain.User) bool {
		if u.TwoFactorSecret != secret || u.TwoFactorEnabled {
			return false
		}
		u.TwoFactorEnabled = true
		u.UpdatedAt = at
		return true
	}), nil
}

func (r *MemoryRepository) DisableTwoFactor(ctx context.Context, userID, secret string, at time.Time) (bool, error) {
	return r.update(userID, func(u *domain.User) bool {
		if u.TwoFactorSecret == "" || u.TwoFactorSecret != secret {
			return false
		}
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = ""
		u.UpdatedAt = at
		return true
	}), nil
}

func (r *MemoryRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.update(userID, func(u *domain.User) bool {
		t := at
		u.LastLoginAt = &t
		return true
	})
	return nil
}

func (r *MemoryRepository) update(id string, fn func(u *domain.User) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false
	}
	cp := *u
	if !fn(&cp) {
		return false
	}
	r.byID[id] = &cp
	return true
}

func (r *MemoryRepository) copyOf(id string) *domain.User {
	u, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
