package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"backoffice/backend/internal/credential/domain"
)

var errDuplicateDigest = errors.New("credential token digest already exists")

// MemoryRepository keeps tokens in process memory. Consume is a compare-and-set under the lock.
type MemoryRepository struct {
	mu       sync.Mutex
	byDigest map[string]domain.Token
}

// NewMemoryRepository returns an empty in-memory token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byDigest: make(map[string]domain.Token)}
}

func (r *MemoryRepository) Create(ctx context.Context, t *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byDigest[t.TokenDigest]; ok {
		return errDuplicateDigest
	}
	r.byDigest[t.TokenDigest] = *t
	return nil
}

func (r *MemoryRepository) GetByDigest(ctx context.Context, digest string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byDigest[digest]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryRepository) Consume(ctx context.Context, digest string, now time.Time) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byDigest[digest]
	if !ok || t.Consumed() || t.Expired(now) {
		return nil, nil
	}
	at := now
	t.ConsumedAt = &at
	r.byDigest[digest] = t
	return &t, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for d, t := range r.byDigest {
		if !cutoff.Before(t.ExpiresAt) || (t.ConsumedAt != nil && !cutoff.Before(*t.ConsumedAt)) {
			delete(r.byDigest, d)
			n++
		}
	}
	return n, nil
}
