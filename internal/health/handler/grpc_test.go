package handler

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockCachePinger implements CachePinger for tests.
type mockCachePinger struct {
	pingErr error
}

func (m *mockCachePinger) Ping(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

const testService = "backoffice.credentials.v1.CredentialService"

func newHealthClient(t *testing.T, c *Checker) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	c.Register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func status(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestCheck_NilDependencies(t *testing.T) {
	c := NewChecker(nil, nil, nil)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheck_JoinsFailures(t *testing.T) {
	c := NewChecker(
		&mockPinger{pingErr: errors.New("connection refused")},
		&mockCachePinger{},
		&mockPolicyChecker{healthErr: errors.New("not ready")},
	)
	err := c.Check(context.Background())
	if err == nil {
		t.Fatal("Check: want error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "database") || !strings.Contains(msg, "policy") || strings.Contains(msg, "redis") {
		t.Errorf("Check error = %q", msg)
	}
}

func TestUpdate_ServingAfterSuccessfulCheck(t *testing.T) {
	c := NewChecker(&mockPinger{}, &mockCachePinger{}, &mockPolicyChecker{}, testService)
	client := newHealthClient(t, c)

	if got := status(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status = %v, want NOT_SERVING", got)
	}
	if err := c.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for _, svc := range []string{"", testService} {
		if got := status(t, client, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("status(%q) = %v, want SERVING", svc, got)
		}
	}
}

func TestUpdate_NotServingOnFailure(t *testing.T) {
	cache := &mockCachePinger{}
	c := NewChecker(nil, cache, nil, testService)
	client := newHealthClient(t, c)
	if err := c.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cache.pingErr = errors.New("redis down")
	if err := c.Update(context.Background()); err == nil {
		t.Fatal("Update: want error")
	}
	if got := status(t, client, testService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestShutdown_NotServing(t *testing.T) {
	c := NewChecker(nil, nil, nil)
	client := newHealthClient(t, c)
	_ = c.Update(context.Background())
	c.Shutdown()
	_ = c.Update(context.Background())
	if got := status(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after Shutdown = %v, want NOT_SERVING", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := NewChecker(&mockPinger{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, DefaultInterval)
		close(done)
	}()
	cancel()
	<-done
}
