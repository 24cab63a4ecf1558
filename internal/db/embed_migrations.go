package db

import "embed"

// MigrationFS embeds the schema (users, credential_tokens, audit_logs) applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
