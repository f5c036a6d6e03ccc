// Package security provides the crypto primitives for the session core: opaque
// random tokens, one-way digests, salted client-IP fingerprints, and peppered
// Argon2id password hashing.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// minTokenBytes is the floor for token entropy (192 bits). Requests for
	// fewer bytes are promoted to this value.
	minTokenBytes = 24
	// sessionTokenBytes is the entropy used for session IDs and CSRF tokens.
	sessionTokenBytes = 32
)

// Token returns n cryptographically random bytes encoded as unpadded URL-safe
// base64. n below 24 is promoted to 24. A failing system RNG is fatal: Token
// panics rather than degrading to a weaker source.
func Token(n int) string {
	if n < minTokenBytes {
		n = minTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("security: system RNG unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewSessionToken returns an opaque token suitable for session IDs (256 bits).
func NewSessionToken() string {
	return Token(sessionTokenBytes)
}

// Digest returns the SHA-256 hash of s, hex-encoded. Used for token-at-rest
// storage. Never use for passwords; see PasswordHasher.
func Digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// FingerprintIP returns an HMAC-SHA256 of the client IP keyed with a
// server-side secret, hex-encoded. The raw IP is never persisted; fingerprints
// remain comparable across requests for the same secret.
func FingerprintIP(ip, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
