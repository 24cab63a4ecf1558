package repository

import (
	"context"
	"sync"
	"time"

	"backoffice/backend/internal/mfa/domain"
)

// MemoryRepository keeps login challenges in process memory. Used when REDIS_URL is not set
// (single instance only) and in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	m    map[string]domain.LoginChallenge
	nowF func() time.Time
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{m: make(map[string]domain.LoginChallenge), nowF: now}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.LoginChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c.ID] = *c
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.LoginChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	if c.Expired(r.nowF()) {
		delete(r.m, id)
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return false, nil
	}
	c.Attempts++
	if c.Attempts >= maxAttempts {
		delete(r.m, id)
		return true, nil
	}
	if c.Expired(r.nowF()) {
		delete(r.m, id)
		return false, nil
	}
	r.m[id] = c
	return false, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[id]
	delete(r.m, id)
	return ok, nil
}
