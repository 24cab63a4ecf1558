package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "backoffice/backend/internal/health/handler"
	identityhandler "backoffice/backend/internal/identity/handler"
	identityservice "backoffice/backend/internal/identity/service"
	"backoffice/backend/internal/invite"
	"backoffice/backend/internal/server/interceptors"
	"backoffice/backend/internal/telemetry"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the auth service for login, 2FA and password RPCs. If nil, those RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// Invites issues INVITE/RESET tokens. If nil, Invite and RequestPasswordReset return Unimplemented.
	Invites *invite.Service
	// BaseURL is the front-end origin embedded in invite and reset links.
	BaseURL string
	// Tokens validates session tokens for protected RPCs. Required by NewServer.
	Tokens interceptors.SessionValidator
	// Emitter receives one grpc_request event per RPC. If nil, no request events are emitted.
	Emitter telemetry.EventEmitter
	// Health publishes grpc.health.v1 status. If nil, the health service is not registered.
	Health *healthhandler.Checker
}

// PublicMethods returns the full method names that do not require a Bearer token:
// the unauthenticated credential RPCs and the health check.
func PublicMethods() map[string]bool {
	public := map[string]bool{
		"/" + healthpb.Health_ServiceDesc.ServiceName + "/Check": true,
		"/" + healthpb.Health_ServiceDesc.ServiceName + "/List":  true,
	}
	for _, m := range identityhandler.PublicMethods() {
		public[m] = true
	}
	return public
}

// NewServer returns a gRPC server with OpenTelemetry instrumentation and all services registered.
// Session authentication runs before the request telemetry interceptor so events carry the user ID.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	skip := map[string]bool{
		"/" + healthpb.Health_ServiceDesc.ServiceName + "/Check": true,
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Tokens, PublicMethods()),
			interceptors.TelemetryUnary(deps.Emitter, skip),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with the given server.
//
//   - CredentialService → internal/identity/handler
//   - grpc.health.v1    → internal/health/handler (when deps.Health is set)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterCredentialServiceServer(s, identityhandler.NewCredentialServer(deps.Auth, deps.Invites, deps.BaseURL))
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}
