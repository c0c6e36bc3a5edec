package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id defaults per the OWASP 2025 recommendation.
const (
	defaultArgonTime    = 3         // iterations
	defaultArgonMemory  = 64 * 1024 // 64 MiB
	defaultArgonThreads = 1         // parallelism
	defaultArgonKeyLen  = 32        // output hash length
	defaultArgonSaltLen = 16        // salt length
)

// VerifyResult is the outcome of a digest verification.
type VerifyResult int

const (
	// VerifyMismatch means the secret does not match the digest.
	VerifyMismatch VerifyResult = iota

	// VerifyMatch means the secret is the exact input that produced the digest.
	VerifyMatch

	// VerifyMalformed means the stored digest could not be parsed. Treated
	// as a failed verification by every caller; it never panics or escapes
	// as an exception.
	VerifyMalformed
)

// Hasher produces and verifies Argon2id digests in PHC string format.
//
// The same hasher handles login passwords and refresh-token secrets, so a
// leaked token table reveals no usable secrets. Parameters are injectable
// so tests can use deliberately weak (fast) settings.
type Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

// NewHasher returns a Hasher with production parameters.
func NewHasher() *Hasher {
	return &Hasher{
		time:    defaultArgonTime,
		memory:  defaultArgonMemory,
		threads: defaultArgonThreads,
		keyLen:  defaultArgonKeyLen,
		saltLen: defaultArgonSaltLen,
	}
}

// NewHasherWithParams returns a Hasher with explicit parameters.
// Intended for tests; production code should use NewHasher.
func NewHasherWithParams(time, memory uint32, threads uint8) *Hasher {
	return &Hasher{
		time:    time,
		memory:  memory,
		threads: threads,
		keyLen:  defaultArgonKeyLen,
		saltLen: defaultArgonSaltLen,
	}
}

// Hash hashes a secret using Argon2id and returns it in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// Non-deterministic across calls: two hashes of the same secret differ.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks a secret against an Argon2id PHC digest string.
// Parameters are read from the digest itself, so digests created under
// different settings remain verifiable.
func (h *Hasher) Verify(digest, secret string) VerifyResult {
	salt, hash, params, err := decodePHC(digest)
	if err != nil {
		return VerifyMalformed
	}

	candidate := argon2.IDKey([]byte(secret), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	if subtle.ConstantTimeCompare(hash, candidate) == 1 {
		return VerifyMatch
	}
	return VerifyMismatch
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string format into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}
