// Package notify delivers credential emails (invite and password reset links).
package notify

import (
	"context"
	"errors"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Notifier sends a message. Implementations must not log message bodies; they carry one-time links.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNotConfigured is returned when a notifier lacks required settings.
var ErrNotConfigured = errors.New("notify: not configured")
