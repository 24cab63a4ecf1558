package domain

import (
	"errors"
	"time"
)

// Purpose is what a credential token authorizes.
type Purpose string

const (
	// PurposeInvite lets a newly invited user set their first password.
	PurposeInvite Purpose = "INVITE"
	// PurposeReset lets an existing user replace a forgotten password.
	PurposeReset Purpose = "RESET"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeInvite || p == PurposeReset
}

var (
	ErrTokenNotFound    = errors.New("credential token not found")
	ErrTokenExpired     = errors.New("credential token expired")
	ErrTokenAlreadyUsed = errors.New("credential token already used")
)

// Token is a persisted single-use credential token. Only the digest of the plaintext is kept.
type Token struct {
	ID          string
	UserID      string
	Purpose     Purpose
	TokenDigest string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Expired reports whether the token can no longer be consumed at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Consumed reports whether the token has been redeemed.
func (t *Token) Consumed() bool {
	return t.ConsumedAt != nil
}
