package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned internally when an encoded hash is malformed or
// uses unsupported parameters. Verify never surfaces it; malformed input
// verifies as false.
var ErrInvalidHash = errors.New("security: invalid password hash")

const (
	argon2Version = 19 // argon2.Version (0x13)
	saltLength    = 16
	keyLength     = 32
	maxSaltLength = 64
	maxKeyLength  = 128
)

// Argon2Params holds the Argon2id cost parameters. These are configuration,
// never client input.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params is a reasonable interactive-login cost (64 MiB, 3
// passes, 2 lanes).
var DefaultArgon2Params = Argon2Params{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 2}

// PasswordHasher hashes and verifies passwords with Argon2id. Every hash
// carries a per-call random salt; a server-wide pepper is prepended to the
// password before hashing. Callers must not log or persist plaintext
// passwords.
type PasswordHasher struct {
	pepper    string
	params    Argon2Params
	dummyHash string
}

// NewPasswordHasher returns a PasswordHasher using the given pepper and cost
// parameters. Zero-value params fall back to DefaultArgon2Params. The returned
// hasher pre-computes a reference hash of an unguessable value for
// existence-hiding verification (see DummyHash).
func NewPasswordHasher(pepper string, params Argon2Params) *PasswordHasher {
	if params.MemoryKiB == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		params = DefaultArgon2Params
	}
	h := &PasswordHasher{pepper: pepper, params: params}
	dummy, err := h.Hash(Token(sessionTokenBytes))
	if err != nil {
		panic(fmt.Sprintf("security: computing reference hash: %v", err))
	}
	h.dummyHash = dummy
	return h
}

// Hash returns an encoded Argon2id hash of password in the form
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("security: salt: %w", err)
	}
	key := argon2.IDKey([]byte(h.pepper+password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, keyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether password matches the encoded hash. Malformed or
// unsupported hashes verify as false; Verify never returns an error to the
// caller and never panics on attacker-controlled input.
func (h *PasswordHasher) Verify(encoded, password string) bool {
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	// Refuse parameters far above our configured cost so a crafted hash
	// string cannot drive pathological resource usage.
	if !withinBounds(params, h.params) {
		return false
	}
	key := argon2.IDKey([]byte(h.pepper+password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// DummyHash returns a pre-computed hash of an unguessable value. When no
// credential record exists for a login attempt, callers must verify the
// supplied password against this hash instead of short-circuiting, so that
// subject existence cannot be inferred from timing or control flow.
func (h *PasswordHasher) DummyHash() string {
	return h.dummyHash
}

func withinBounds(got, limit Argon2Params) bool {
	if got.MemoryKiB > limit.MemoryKiB*2 || got.Iterations > limit.Iterations*2 || got.Parallelism > limit.Parallelism*2 {
		return false
	}
	return true
}

// decodeHash parses an encoded Argon2id hash into params, salt, and key.
func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > maxSaltLength {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > maxKeyLength {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	return Argon2Params{MemoryKiB: mem, Iterations: it, Parallelism: uint8(par)}, salt, key, nil
}
