// migrate applies the embedded schema migrations (users, credential_tokens, audit_logs).
// Usage: go run ./cmd/migrate [-direction up|down] [-version]
package main

import (
	"flag"
	"fmt"
	"os"

	"backoffice/backend/internal/config"
	"backoffice/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if *showVersion {
		version, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
		return
	}

	// Run treats "already at target version" as success.
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	version, _, err := migrate.Version(cfg.DatabaseURL)
	if err == nil {
		fmt.Printf("migrated %s; schema version %d\n", *direction, version)
	}
}
