package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"backoffice/backend/internal/mfa/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// repositories returns every implementation wired to the same fake clock.
func repositories(t *testing.T, clock *fakeClock) map[string]Repository {
	_, client := newTestRedis(t)
	return map[string]Repository{
		"memory": NewMemoryRepository(clock.Now),
		"redis":  NewRedisRepository(client, "test", clock.Now),
	}
}

func newChallenge(clock *fakeClock, id string) *domain.LoginChallenge {
	return &domain.LoginChallenge{
		ID:        id,
		UserID:    "user-1",
		Email:     "ana@example.com",
		ExpiresAt: clock.Now().Add(DefaultChallengeTTL),
	}
}

func TestRepository_CreateGetDelete(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	for name, repo := range repositories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newChallenge(clock, "ch-"+name)
			if err := repo.Create(ctx, c); err != nil {
				t.Fatalf("Create: %v", err)
			}
			got, err := repo.GetByID(ctx, c.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if got == nil {
				t.Fatal("GetByID returned nil for stored challenge")
			}
			if got.UserID != "user-1" || got.Email != "ana@example.com" || got.Attempts != 0 {
				t.Errorf("challenge = %+v", got)
			}
			if !got.ExpiresAt.Equal(c.ExpiresAt) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, c.ExpiresAt)
			}
			if deleted, err := repo.Delete(ctx, c.ID); err != nil || !deleted {
				t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
			}
			got, err = repo.GetByID(ctx, c.ID)
			if err != nil || got != nil {
				t.Errorf("after Delete: got %+v, err %v", got, err)
			}
			if deleted, err := repo.Delete(ctx, c.ID); err != nil || deleted {
				t.Errorf("Delete of missing challenge: deleted=%v err=%v", deleted, err)
			}
		})
	}
}

func TestRepository_GetByID_Missing(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	for name, repo := range repositories(t, clock) {
		t.Run(name, func(t *testing.T) {
			got, err := repo.GetByID(context.Background(), "nope")
			if err != nil || got != nil {
				t.Errorf("GetByID missing: got %+v, err %v", got, err)
			}
		})
	}
}

func TestRepository_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	for name, repo := range repositories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newChallenge(clock, "exp-"+name)
			if err := repo.Create(ctx, c); err != nil {
				t.Fatalf("Create: %v", err)
			}
			clock.Advance(DefaultChallengeTTL)
			defer clock.Advance(-DefaultChallengeTTL)
			got, err := repo.GetByID(ctx, c.ID)
			if err != nil || got != nil {
				t.Errorf("expired challenge: got %+v, err %v", got, err)
			}
		})
	}
}

func TestRepository_RecordFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	for name, repo := range repositories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newChallenge(clock, "fail-"+name)
			if err := repo.Create(ctx, c); err != nil {
				t.Fatalf("Create: %v", err)
			}
			for i := 1; i < 3; i++ {
				exceeded, err := repo.RecordFailure(ctx, c.ID, 3)
				if err != nil {
					t.Fatalf("RecordFailure %d: %v", i, err)
				}
				if exceeded {
					t.Fatalf("RecordFailure %d: exceeded too early", i)
				}
				got, _ := repo.GetByID(ctx, c.ID)
				if got == nil || got.Attempts != i {
					t.Fatalf("after %d failures: %+v", i, got)
				}
			}
			exceeded, err := repo.RecordFailure(ctx, c.ID, 3)
			if err != nil || !exceeded {
				t.Fatalf("third failure: exceeded=%v err=%v", exceeded, err)
			}
			if got, _ := repo.GetByID(ctx, c.ID); got != nil {
				t.Error("challenge should be removed once attempts are exhausted")
			}
			exceeded, err = repo.RecordFailure(ctx, c.ID, 3)
			if err != nil || exceeded {
				t.Errorf("failure on removed challenge: exceeded=%v err=%v", exceeded, err)
			}
		})
	}
}

func TestRedisRepository_CreateSetsKeyTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	mr, client := newTestRedis(t)
	repo := NewRedisRepository(client, "", clock.Now)
	c := newChallenge(clock, "ttl")
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	key := defaultKeyPrefix + ":ttl"
	if !mr.Exists(key) {
		t.Fatalf("key %q not found", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > DefaultChallengeTTL {
		t.Errorf("TTL = %v, want (0, %v]", ttl, DefaultChallengeTTL)
	}
	mr.FastForward(DefaultChallengeTTL + time.Second)
	got, err := repo.GetByID(context.Background(), "ttl")
	if err != nil || got != nil {
		t.Errorf("after key expiry: got %+v, err %v", got, err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRedisRepository_CreateExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	_, client := newTestRedis(t)
	repo := NewRedisRepository(client, "", clock.Now)
	c := &domain.LoginChallenge{ID: "old", UserID: "u", ExpiresAt: clock.Now().Add(-time.Second)}
	if err := repo.Create(context.Background(), c); err == nil {
		t.Error("Create with past expiry should fail")
	}
}
