package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "backoffice.credentials.v1.CredentialService"

// CredentialServiceServer is the server API for CredentialService.
type CredentialServiceServer interface {
	Invite(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteSecondFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BeginTwoFactorSetup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmTwoFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DisableTwoFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FullMethod returns "/<ServiceName>/<method>", the name seen by interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PublicMethods are callable without a session token.
func PublicMethods() []string {
	return []string{
		FullMethod("RequestPasswordReset"),
		FullMethod("SetPassword"),
		FullMethod("Login"),
		FullMethod("CompleteSecondFactor"),
	}
}

type unaryCall func(srv CredentialServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CredentialServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CredentialServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes CredentialService. Requests and responses are google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CredentialServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Invite", CredentialServiceServer.Invite),
		unaryHandler("RequestPasswordReset", CredentialServiceServer.RequestPasswordReset),
		unaryHandler("SetPassword", CredentialServiceServer.SetPassword),
		unaryHandler("Login", CredentialServiceServer.Login),
		unaryHandler("CompleteSecondFactor", CredentialServiceServer.CompleteSecondFactor),
		unaryHandler("BeginTwoFactorSetup", CredentialServiceServer.BeginTwoFactorSetup),
		unaryHandler("ConfirmTwoFactor", CredentialServiceServer.ConfirmTwoFactor),
		unaryHandler("DisableTwoFactor", CredentialServiceServer.DisableTwoFactor),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "credentials/v1/credentials.proto",
}

// RegisterCredentialServiceServer registers srv with s.
func RegisterCredentialServiceServer(s grpc.ServiceRegistrar, srv CredentialServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Invoke calls method on cc with a Struct request; used by clients and tests.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
