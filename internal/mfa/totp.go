// Package mfa implements the time-based second factor: secret provisioning, RFC 6238 code
// generation and verification, and otpauth:// provisioning URIs.
package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretBytes is the size of a generated shared secret (160 bits).
	SecretBytes = 20
	// Digits is the length of a code.
	Digits = 6
	// Period is the time step.
	Period = 30 * time.Second
	// Algorithm is the HMAC hash advertised in provisioning URIs.
	Algorithm = "SHA1"
)

// ErrInvalidSecret is returned when a secret is empty or not valid base32.
var ErrInvalidSecret = errors.New("invalid totp secret")

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a random shared secret encoded as unpadded base32, the encoding
// authenticator apps expect in otpauth URIs.
func GenerateSecret() (string, error) {
	return generateSecret(rand.Reader)
}

func generateSecret(r io.Reader) (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// DecodeSecret parses a base32 secret. Lower case, spaces and trailing padding are tolerated.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := secretEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// TOTP generates and verifies 6-digit codes over 30-second steps (HMAC-SHA1).
type TOTP struct {
	// Skew accepts the code of the step immediately before the current one. Never wider.
	Skew bool
}

// NewTOTP returns a TOTP engine. skew enables acceptance of the previous step.
func NewTOTP(skew bool) *TOTP {
	return &TOTP{Skew: skew}
}

// Provision returns a fresh secret. Nothing is persisted; the caller attaches it to an account.
func (e *TOTP) Provision() (string, error) {
	return GenerateSecret()
}

// Code returns the code of the time step containing t.
func (e *TOTP) Code(secret string, t time.Time) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(raw, counterAt(t)), nil
}

// Verify reports whether candidate is the code for t (or, with Skew, for the previous step).
// Malformed candidates and secrets are rejected.
func (e *TOTP) Verify(secret, candidate string, t time.Time) bool {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != Digits || !isDigits(candidate) {
		return false
	}
	raw, err := DecodeSecret(secret)
	if err != nil {
		return false
	}
	counter := counterAt(t)
	ok := subtle.ConstantTimeCompare([]byte(hotp(raw, counter)), []byte(candidate)) == 1
	if e.Skew && counter > 0 {
		prev := subtle.ConstantTimeCompare([]byte(hotp(raw, counter-1)), []byte(candidate)) == 1
		ok = ok || prev
	}
	return ok
}

// URI builds the otpauth://totp provisioning URI for authenticator apps.
func (e *TOTP) URI(issuer, account, secret string) string {
	label := url.PathEscape(issuer + ":" + account)
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", Algorithm)
	v.Set("digits", strconv.Itoa(Digits))
	v.Set("period", strconv.Itoa(int(Period/time.Second)))
	return "otpauth://totp/" + label + "?" + v.Encode()
}

func counterAt(t time.Time) uint64 {
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec) / uint64(Period/time.Second)
}

// hotp is RFC 4226 dynamic truncation over HMAC-SHA1.
func hotp(secret []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])
	return fmt.Sprintf("%0*d", Digits, bin%1000000)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
