package domain

import "time"

// AuditLog represents a credential audit event.
type AuditLog struct {
	ID        string
	UserID    string // empty when the account is unknown (e.g. failed login for an unknown email)
	Action    string
	Resource  string
	IP        string
	Metadata  string // JSON object or empty
	CreatedAt time.Time
}
