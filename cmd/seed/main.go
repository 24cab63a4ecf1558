// seed creates a development admin account and prints its invite link: go run ./cmd/seed [-email ...] [-policy policy.rego].
// Idempotent: an account that already has a password is left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"backoffice/backend/internal/config"
	"backoffice/backend/internal/credential"
	credentialrepo "backoffice/backend/internal/credential/repository"
	"backoffice/backend/internal/db"
	"backoffice/backend/internal/invite"
	"backoffice/backend/internal/notify"
	userdomain "backoffice/backend/internal/user/domain"
	userrepo "backoffice/backend/internal/user/repository"
)

// adminRegoPolicy grants the admin role to one address; %q is the seeded email.
const adminRegoPolicy = `package backoffice.credentials

default min_password_length := 8

roles := ["admin", "user"] if {
	input.user.email == %q
} else := ["user"]
`

const (
	devAdminEmail = "dev@example.com"
	devAdminName  = "Dev Admin"
)

func main() {
	email := flag.String("email", devAdminEmail, "Admin email to invite")
	name := flag.String("name", devAdminName, "Admin display name")
	policyOut := flag.String("policy", "", "Optional path to write a Rego module granting the admin role (use as POLICY_FILE)")
	flag.Parse()
	*email = userdomain.NormalizeEmail(*email)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil && existing.PasswordHash != "" {
		log.Printf("Seed already applied (%s has a password). Skipping.", *email)
		os.Exit(0)
	}

	if *policyOut != "" {
		if err := os.WriteFile(*policyOut, []byte(fmt.Sprintf(adminRegoPolicy, *email)), 0o644); err != nil {
			log.Fatalf("write policy: %v", err)
		}
		log.Printf("Wrote admin policy to %s; set POLICY_FILE=%s", *policyOut, *policyOut)
	}

	outbox := notify.NewMemoryOutbox()
	store := credential.NewStore(credentialrepo.NewPostgresRepository(conn), users, nil)
	invites := invite.NewService(store, users, outbox, nil, cfg.InviteTTL(), cfg.ResetTTL())
	res, err := invites.Invite(ctx, *email, *name, cfg.AppBaseURL)
	if err != nil {
		log.Fatalf("invite: %v", err)
	}
	msg, ok := outbox.Last(ctx, *email)
	if !ok {
		log.Fatal("invite: no message recorded")
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Invite for %s (expires %s):\n\n%s\n", *email, res.ExpiresAt.Format("2006-01-02 15:04 MST"), msg.Text)
}
