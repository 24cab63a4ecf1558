package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"backoffice/backend/internal/db"
	"backoffice/backend/internal/db/migrate"
	"backoffice/backend/internal/user/domain"
)

func newUser(email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{ID: uuid.NewString(), Email: email, Name: "Ana", CreatedAt: now, UpdatedAt: now}
}

// exerciseRepository runs the behaviour every Repository implementation must share.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)
	email := "ana+" + uuid.NewString()[:8] + "@example.com"

	u := newUser(email)
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, newUser(email)); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate Create: want ErrDuplicateEmail, got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "  "+email+" ")
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: got %+v, err %v", got, err)
	}
	if got.HasPassword() || got.EmailVerified || got.TwoFactorEnabled || got.TwoFactorSecret != "" || got.LastLoginAt != nil {
		t.Fatalf("new user credential state = %+v", got)
	}
	if missing, err := repo.GetByID(ctx, uuid.NewString()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: got %+v, err %v", missing, err)
	}

	t.Run("SetPassword", func(t *testing.T) {
		applied, err := repo.SetPassword(ctx, u.ID, "digest", at)
		if err != nil || !applied {
			t.Fatalf("SetPassword: applied=%v err=%v", applied, err)
		}
		got, _ := repo.GetByID(ctx, u.ID)
		if got.PasswordHash != "digest" || !got.EmailVerified {
			t.Errorf("after SetPassword: %+v", got)
		}
		applied, err = repo.SetPassword(ctx, uuid.NewString(), "digest", at)
		if err != nil || applied {
			t.Errorf("SetPassword on missing user: applied=%v err=%v", applied, err)
		}
	})

	t.Run("TwoFactorLifecycle", func(t *testing.T) {
		if applied, _ := repo.EnableTwoFactor(ctx, u.ID, "SECRETA", at); applied {
			t.Fatal("EnableTwoFactor without a pending secret applied")
		}
		if applied, err := repo.SetPendingTwoFactorSecret(ctx, u.ID, "SECRETA", at); err != nil || !applied {
			t.Fatalf("SetPendingTwoFactorSecret: applied=%v err=%v", applied, err)
		}
		if applied, _ := repo.SetPendingTwoFactorSecret(ctx, u.ID, "SECRETB", at); applied {
			t.Fatal("second pending secret overwrote the first")
		}
		if applied, _ := repo.EnableTwoFactor(ctx, u.ID, "SECRETB", at); applied {
			t.Fatal("EnableTwoFactor with a stale secret applied")
		}
		if applied, err := repo.EnableTwoFactor(ctx, u.ID, "SECRETA", at); err != nil || !applied {
			t.Fatalf("EnableTwoFactor: applied=%v err=%v", applied, err)
		}
		got, _ := repo.GetByID(ctx, u.ID)
		if !got.TwoFactorEnabled || got.TwoFactorSecret != "SECRETA" {
			t.Fatalf("after enable: %+v", got)
		}
		if applied, _ := repo.DisableTwoFactor(ctx, u.ID, "SECRETB", at); applied {
			t.Fatal("DisableTwoFactor with wrong secret applied")
		}
		if applied, err := repo.DisableTwoFactor(ctx, u.ID, "SECRETA", at); err != nil || !applied {
			t.Fatalf("DisableTwoFactor: applied=%v err=%v", applied, err)
		}
		got, _ = repo.GetByID(ctx, u.ID)
		if got.TwoFactorEnabled || got.TwoFactorSecret != "" {
			t.Fatalf("after disable: %+v", got)
		}
	})

	t.Run("ConcurrentPendingSecret", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if applied, _ := repo.SetPendingTwoFactorSecret(ctx, u.ID, "RACE"+string(rune('A'+i)), at); applied {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("%d concurrent pending secrets applied, want 1", wins.Load())
		}
	})

	t.Run("UpdateLastLogin", func(t *testing.T) {
		if err := repo.UpdateLastLogin(ctx, u.ID, at); err != nil {
			t.Fatalf("UpdateLastLogin: %v", err)
		}
		got, _ := repo.GetByID(ctx, u.ID)
		if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
			t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, at)
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	u := newUser("copy@example.com")
	_ = repo.Create(context.Background(), u)
	got, _ := repo.GetByID(context.Background(), u.ID)
	got.PasswordHash = "mutated"
	again, _ := repo.GetByID(context.Background(), u.ID)
	if again.PasswordHash != "" {
		t.Error("mutating a returned user changed stored state")
	}
}

// TestPostgresRepository runs against a real database when DATABASE_URL is set.
func TestPostgresRepository(t *testing.T) {
	conn := openTestDB(t)
	exerciseRepository(t, NewPostgresRepository(conn))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
