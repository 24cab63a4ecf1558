package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	healthhandler "backoffice/backend/internal/health/handler"
	identityhandler "backoffice/backend/internal/identity/handler"
	"backoffice/backend/internal/security"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_WithoutHealth(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	if len(reg.services) != 1 || reg.services[0] != identityhandler.ServiceName {
		t.Errorf("services = %v, want [%s]", reg.services, identityhandler.ServiceName)
	}
}

func TestRegisterServices_WithHealth(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: healthhandler.NewChecker(nil, nil, nil)})
	if len(reg.services) != 2 || reg.services[1] != healthpb.Health_ServiceDesc.ServiceName {
		t.Errorf("services = %v", reg.services)
	}
}

func TestPublicMethods(t *testing.T) {
	public := PublicMethods()
	for _, m := range []string{
		identityhandler.FullMethod("Login"),
		identityhandler.FullMethod("SetPassword"),
		"/grpc.health.v1.Health/Check",
	} {
		if !public[m] {
			t.Errorf("%s should be public", m)
		}
	}
	for _, m := range []string{
		identityhandler.FullMethod("Invite"),
		identityhandler.FullMethod("BeginTwoFactorSetup"),
		identityhandler.FullMethod("DisableTwoFactor"),
	} {
		if public[m] {
			t.Errorf("%s should require a session", m)
		}
	}
}

func dial(t *testing.T, s *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
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
	return conn
}

func TestNewServer_AuthAndHealth(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	checker := healthhandler.NewChecker(nil, nil, nil, identityhandler.ServiceName)
	if err := checker.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	conn := dial(t, NewServer(Deps{Tokens: tokens, Health: checker}))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: identityhandler.ServiceName})
	if err != nil {
		t.Fatalf("health Check without token: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v", resp.GetStatus())
	}

	_, err = identityhandler.Invoke(context.Background(), conn, "BeginTwoFactorSetup", &structpb.Struct{})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("protected RPC without token: code = %v, want Unauthenticated", status.Code(err))
	}

	// Public method reaches the handler; the nil auth service answers Unimplemented.
	_, err = identityhandler.Invoke(context.Background(), conn, "Login", &structpb.Struct{})
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("public RPC: code = %v, want Unimplemented", status.Code(err))
	}
}
