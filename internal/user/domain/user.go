package domain

import (
	"net/mail"
	"strings"
	"time"

	"backoffice/backend/internal/apperr"
)

// User is the credential state of a back-office account.
type User struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string // empty until a password is set through an INVITE/RESET token
	EmailVerified    bool   // set together with the first password
	TwoFactorEnabled bool
	TwoFactorSecret  string // base32; present but not enabled means setup is pending
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail returns a validation error unless email is a bare address (no display name).
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email %q is not a valid address", email)
	}
	return nil
}

// Validate normalizes the email and validates the user for persistence.
func (u *User) Validate() error {
	u.Email = NormalizeEmail(u.Email)
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if u.TwoFactorEnabled && u.TwoFactorSecret == "" {
		return apperr.Validation("two-factor enabled without a secret")
	}
	return nil
}

// HasPassword reports whether a password digest is stored.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PendingTwoFactorSecret returns the provisioned secret awaiting confirmation, or "".
func (u *User) PendingTwoFactorSecret() string {
	if u.TwoFactorEnabled {
		return ""
	}
	return u.TwoFactorSecret
}
