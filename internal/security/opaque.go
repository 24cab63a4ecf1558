package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// OpaqueTokenBytes is the entropy of generated opaque tokens (256 bits).
const OpaqueTokenBytes = 32

// GenerateOpaqueToken returns a random URL-safe token (unpadded base64) with 256 bits of entropy.
// The plaintext is meant to be delivered out-of-band once; only DigestToken(token) is stored.
func GenerateOpaqueToken() (string, error) {
	return generateOpaqueToken(rand.Reader)
}

func generateOpaqueToken(r io.Reader) (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DigestToken returns the hex-encoded SHA-256 of token. Deterministic, fixed size (64 chars),
// used as the storage and lookup key for single-use tokens.
func DigestToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
