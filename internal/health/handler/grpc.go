package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is used for readiness checks (e.g. *sql.DB implements PingContext).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger is used for the challenge store readiness check (e.g. the Redis challenge repository).
type CachePinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker is used for readiness checks of the policy engine (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// DefaultInterval is how often Run re-evaluates dependencies.
const DefaultInterval = 10 * time.Second

// Checker reports readiness through the standard grpc.health.v1 service. The overall status ("")
// and every name in services follow the result of Check. Any nil dependency is skipped.
type Checker struct {
	srv      *health.Server
	db       Pinger
	cache    CachePinger
	policy   PolicyChecker
	services []string
}

// NewChecker returns a Checker with all statuses set to NOT_SERVING until the first check.
func NewChecker(db Pinger, cache CachePinger, policy PolicyChecker, services ...string) *Checker {
	c := &Checker{
		srv:      health.NewServer(),
		db:       db,
		cache:    cache,
		policy:   policy,
		services: services,
	}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Register registers the health service on s.
func (c *Checker) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, c.srv)
}

// Check pings every configured dependency and returns the joined failures.
func (c *Checker) Check(ctx context.Context) error {
	var errs []error
	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Update runs Check once and publishes SERVING or NOT_SERVING.
func (c *Checker) Update(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := c.Check(checkCtx)
	if err != nil {
		c.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	c.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run updates the status every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.Update(ctx); err != nil && ctx.Err() == nil {
			log.Printf("health: not serving: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown sets every status to NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.srv.Shutdown()
}

func (c *Checker) set(st healthpb.HealthCheckResponse_ServingStatus) {
	c.srv.SetServingStatus("", st)
	for _, name := range c.services {
		c.srv.SetServingStatus(name, st)
	}
}
