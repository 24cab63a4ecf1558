package handler

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"backoffice/backend/internal/apperr"
	credentialdomain "backoffice/backend/internal/credential/domain"
	"backoffice/backend/internal/identity/service"
	"backoffice/backend/internal/invite"
	"backoffice/backend/internal/platform/rbac"
)

// AdminRole is the session role allowed to invite accounts.
const AdminRole = "admin"

// CredentialServer implements CredentialService on top of the auth and invite services.
// Messages are structpb.Struct; field names are snake_case.
type CredentialServer struct {
	auth    *service.AuthService
	invites *invite.Service
	baseURL string
}

// NewCredentialServer returns the gRPC server. baseURL is the front-end origin used in invite and
// reset links. If auth or invites is nil, the RPCs that need it return Unimplemented.
func NewCredentialServer(auth *service.AuthService, invites *invite.Service, baseURL string) *CredentialServer {
	return &CredentialServer{auth: auth, invites: invites, baseURL: baseURL}
}

// Invite creates the account if needed and emails it an INVITE link. Requires the admin role.
func (s *CredentialServer) Invite(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.invites == nil {
		return nil, status.Error(codes.Unimplemented, "method Invite not implemented")
	}
	if _, err := rbac.RequireRole(ctx, AdminRole); err != nil {
		return nil, err
	}
	email := field(req, "email")
	if email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}
	res, err := s.invites.Invite(ctx, email, field(req, "name"), s.baseURL)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"user_id":    res.UserID,
		"expires_at": formatTime(res.ExpiresAt),
		"delivered":  res.Delivered,
	})
}

// RequestPasswordReset emails a RESET link. The response is the same whether or not the address
// is registered or the email could be sent.
func (s *CredentialServer) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.invites == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestPasswordReset not implemented")
	}
	_, err := s.invites.RequestReset(ctx, field(req, "email"), s.baseURL)
	if err != nil && !errors.Is(err, invite.ErrDeliveryFailed) {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{"accepted": true})
}

// SetPassword redeems an INVITE/RESET token and sets the account password.
func (s *CredentialServer) SetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method SetPassword not implemented")
	}
	token := field(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	u, err := s.auth.RedeemAndSetPassword(ctx, token, rawField(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{"user_id": u.ID, "email_verified": u.EmailVerified})
}

// Login checks email and password; the result is a session or a second-factor challenge.
func (s *CredentialServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	res, err := s.auth.Login(ctx, field(req, "email"), rawField(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return loginResponse(res)
}

// CompleteSecondFactor finishes a login that returned mfa_required.
func (s *CredentialServer) CompleteSecondFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method CompleteSecondFactor not implemented")
	}
	res, err := s.auth.CompleteSecondFactor(ctx, field(req, "challenge_id"), field(req, "code"))
	if err != nil {
		return nil, toStatus(err)
	}
	return loginResponse(res)
}

// BeginTwoFactorSetup provisions (or returns the pending) TOTP secret for the caller.
func (s *CredentialServer) BeginTwoFactorSetup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method BeginTwoFactorSetup not implemented")
	}
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	setup, err := s.auth.BeginTwoFactorSetup(ctx, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"already_enabled": setup.AlreadyEnabled,
		"secret":          setup.Secret,
		"otpauth_uri":     setup.URI,
	})
}

// ConfirmTwoFactor enables 2FA with a code from the pending secret.
func (s *CredentialServer) ConfirmTwoFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ConfirmTwoFactor not implemented")
	}
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ConfirmTwoFactorEnable(ctx, p, field(req, "code")); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{"enabled": true})
}

// DisableTwoFactor turns 2FA off with a current code.
func (s *CredentialServer) DisableTwoFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method DisableTwoFactor not implemented")
	}
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.DisableTwoFactor(ctx, p, field(req, "code")); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{"enabled": false})
}

func loginResponse(res *service.LoginResult) (*structpb.Struct, error) {
	if res.MFARequired {
		return newStruct(map[string]interface{}{
			"user_id":              res.UserID,
			"mfa_required":         true,
			"challenge_id":         res.ChallengeID,
			"challenge_expires_at": formatTime(res.ChallengeExpiresAt),
		})
	}
	return newStruct(map[string]interface{}{
		"user_id":       res.UserID,
		"mfa_required":  false,
		"session_token": res.SessionToken,
		"expires_at":    formatTime(res.ExpiresAt),
	})
}

// principal builds the explicit caller identity from the context set by interceptors.AuthUnary.
func principal(ctx context.Context) (service.Principal, error) {
	userID, err := rbac.RequireUser(ctx)
	if err != nil {
		return service.Principal{}, err
	}
	return service.Principal{UserID: userID}, nil
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case errors.Is(err, service.ErrEmailNotVerified):
		return status.Error(codes.Unauthenticated, "email not verified")
	case errors.Is(err, service.ErrInvalidCode):
		return status.Error(codes.Unauthenticated, "invalid verification code")
	case errors.Is(err, service.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, credentialdomain.ErrTokenNotFound):
		return status.Error(codes.NotFound, "token not found")
	case errors.Is(err, credentialdomain.ErrTokenExpired):
		return status.Error(codes.InvalidArgument, "token expired")
	case errors.Is(err, credentialdomain.ErrTokenAlreadyUsed):
		return status.Error(codes.InvalidArgument, "token already used")
	case errors.Is(err, apperr.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrSetupNotStarted):
		return status.Error(codes.FailedPrecondition, "two-factor setup not started")
	case errors.Is(err, service.ErrConflict):
		return status.Error(codes.Aborted, "credential state changed, retry")
	case errors.Is(err, service.ErrTooManyAttempts):
		return status.Error(codes.ResourceExhausted, "too many invalid codes, try again later")
	case errors.Is(err, invite.ErrDeliveryFailed):
		return status.Error(codes.Unavailable, "could not send email")
	}
	log.Printf("credentials: internal error: %v", err)
	return status.Error(codes.Internal, "internal error")
}

// field returns the trimmed string value of key, or "".
func field(req *structpb.Struct, key string) string {
	return strings.TrimSpace(rawField(req, key))
}

// rawField returns the string value of key untrimmed (passwords), or "".
func rawField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func newStruct(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
