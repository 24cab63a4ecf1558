package domain

import "time"

// Event is a structured credential or request event exported as an OTel log record.
type Event struct {
	UserID    string
	EventType string // e.g. login_success, mfa_failure, grpc_request
	Source    string // emitting component
	Metadata  []byte // JSON
	CreatedAt time.Time
}
