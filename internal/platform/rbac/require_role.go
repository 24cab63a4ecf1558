// Package rbac checks the caller identity set by interceptors.AuthUnary.
package rbac

import (
	"context"
	"slices"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"backoffice/backend/internal/server/interceptors"
)

// RequireUser ensures the caller is authenticated and returns its user ID.
// Returns a gRPC Unauthenticated error otherwise.
func RequireUser(ctx context.Context) (userID string, err error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return "", status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return userID, nil
}

// RequireRole ensures the caller is authenticated and its session carries at least one of roles.
// Returns (userID, nil) on success; returns a gRPC error (Unauthenticated or PermissionDenied) on failure.
func RequireRole(ctx context.Context, roles ...string) (userID string, err error) {
	userID, err = RequireUser(ctx)
	if err != nil {
		return "", err
	}
	granted := interceptors.GetRoles(ctx)
	for _, r := range roles {
		if slices.Contains(granted, r) {
			return userID, nil
		}
	}
	return "", status.Error(codes.PermissionDenied, "required role missing")
}
