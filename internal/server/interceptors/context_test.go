package interceptors

import (
	"context"
	"slices"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", []string{"user", "admin"}, "jti-1")

	if v, ok := GetUserID(ctx); !ok || v != "user-1" {
		t.Errorf("user_id = %q, %v", v, ok)
	}
	if v := GetRoles(ctx); !slices.Equal(v, []string{"user", "admin"}) {
		t.Errorf("roles = %v", v)
	}
	if v, ok := GetSessionID(ctx); !ok || v != "jti-1" {
		t.Errorf("session_id = %q, %v", v, ok)
	}
}

func TestGetters_NotSet(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID: ok on empty context")
	}
	if GetRoles(ctx) != nil {
		t.Error("GetRoles: non-nil on empty context")
	}
	if _, ok := GetSessionID(ctx); ok {
		t.Error("GetSessionID: ok on empty context")
	}
}

func TestContext_Isolation(t *testing.T) {
	parent := context.Background()
	child := WithIdentity(parent, "user-1", nil, "")
	if _, ok := GetUserID(parent); ok {
		t.Error("parent context must not see child identity")
	}
	override := WithIdentity(child, "user-2", nil, "")
	if v, _ := GetUserID(override); v != "user-2" {
		t.Errorf("user_id = %q, want user-2", v)
	}
	if v, _ := GetUserID(child); v != "user-1" {
		t.Errorf("child user_id = %q, want user-1", v)
	}
}
