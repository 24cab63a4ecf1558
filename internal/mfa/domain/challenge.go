package domain

import "time"

// LoginChallenge is the server-held state between a successful password check and the second
// factor. Clients only ever see ID; the account is resolved from UserID.
type LoginChallenge struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	Attempts  int
}

// Expired reports whether the challenge is no longer usable at now.
func (c *LoginChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
