// Worker purges INVITE/RESET tokens that expired or were consumed more than TOKEN_RETENTION ago.
// Runs every PURGE_INTERVAL; DATABASE_URL is required.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/backend/internal/config"
	"backoffice/backend/internal/credential"
	credentialrepo "backoffice/backend/internal/credential/repository"
	"backoffice/backend/internal/db"
	userrepo "backoffice/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	store := credential.NewStore(credentialrepo.NewPostgresRepository(conn), userrepo.NewPostgresRepository(conn), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	interval, retention := cfg.PurgeInterval(), cfg.TokenRetention()
	log.Printf("worker: purging tokens older than %s every %s", retention, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		purgeCtx, purgeCancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := store.Purge(purgeCtx, retention)
		purgeCancel()
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("worker: purge failed: %v", err)
		case n > 0:
			log.Printf("worker: purged %d tokens", n)
		}

		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}
