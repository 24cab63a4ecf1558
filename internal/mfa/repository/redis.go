package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"backoffice/backend/internal/mfa/domain"
)

const (
	defaultKeyPrefix = "mfa:challenge"
	maxWatchRetries  = 4
)

type challengeRecord struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"exp"`
	Attempts  int    `json:"att"`
}

// RedisRepository stores login challenges as Redis keys expiring with the challenge.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRepository returns a challenge repository backed by client. prefix defaults to "mfa:challenge".
func NewRedisRepository(client redis.UniversalClient, prefix string, now func() time.Time) *RedisRepository {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRepository{client: client, prefix: prefix, now: now}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + ":" + id
}

// Create stores c with a key TTL matching its expiry.
func (r *RedisRepository) Create(ctx context.Context, c *domain.LoginChallenge) error {
	ttl := c.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("mfa challenge: already expired")
	}
	data, err := json.Marshal(challengeRecord{
		UserID: c.UserID, Email: c.Email, ExpiresAt: c.ExpiresAt.UnixMilli(), Attempts: c.Attempts,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(c.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("mfa challenge: save: %w", err)
	}
	return nil
}

// GetByID returns the challenge for id, or nil if it is missing or expired.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.LoginChallenge, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("mfa challenge: get: %w", err)
	}
	c, err := decodeChallenge(id, data)
	if err != nil {
		return nil, err
	}
	if c.Expired(r.now()) {
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, nil
	}
	return c, nil
}

// RecordFailure increments the attempt counter inside a WATCH transaction so concurrent wrong
// codes are all counted.
func (r *RedisRepository) RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	key := r.key(id)
	for i := 0; i < maxWatchRetries; i++ {
		var exceeded bool
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			c, err := decodeChallenge(id, data)
			if err != nil {
				return err
			}
			now := r.now()
			c.Attempts++
			if c.Attempts >= maxAttempts || c.Expired(now) {
				exceeded = c.Attempts >= maxAttempts
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}
			updated, err := json.Marshal(challengeRecord{
				UserID: c.UserID, Email: c.Email, ExpiresAt: c.ExpiresAt.UnixMilli(), Attempts: c.Attempts,
			})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, c.ExpiresAt.Sub(now))
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("mfa challenge: record failure: %w", err)
		}
		return exceeded, nil
	}
	return false, fmt.Errorf("mfa challenge: record failure: too much contention on %s", id)
}

// Delete removes the challenge; DEL reports whether this caller removed it.
func (r *RedisRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("mfa challenge: delete: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity; used by the health checker.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeChallenge(id string, data []byte) (*domain.LoginChallenge, error) {
	var rec challengeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("mfa challenge: decode: %w", err)
	}
	return &domain.LoginChallenge{
		ID:        id,
		UserID:    rec.UserID,
		Email:     rec.Email,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
		Attempts:  rec.Attempts,
	}, nil
}
