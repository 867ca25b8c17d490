package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

const (
	// OpaqueTokenSize is the number of random bytes behind reset links and
	// CSRF tokens (64 hex chars once encoded).
	OpaqueTokenSize = 32

	verificationCodeMin   = 100000
	verificationCodeRange = 900000 // [100000, 999999]
)

// GenerateOpaqueToken returns a random token and the SHA-256 hex digest that
// should be stored in its place. Only the raw value is ever handed to a user.
func GenerateOpaqueToken() (raw, hash string, err error) {
	raw, err = randomHex(OpaqueTokenSize)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// GenerateVerificationCode returns a six digit numeric code drawn uniformly
// from [100000, 999999] together with its SHA-256 hex digest.
func GenerateVerificationCode() (raw, hash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeRange))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	raw = strconv.FormatInt(n.Int64()+verificationCodeMin, 10)
	return raw, HashToken(raw), nil
}

// GenerateCSRFToken returns a random token for the double-submit cookie.
// There is no hash counterpart, the cookie and header are compared directly.
func GenerateCSRFToken() (string, error) {
	return randomHex(OpaqueTokenSize)
}

// HashToken returns the lowercase hex SHA-256 digest of raw.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether raw hashes to storedHash. Empty inputs never
// verify. The digests are compared in constant time.
func VerifyToken(raw, storedHash string) bool {
	if raw == "" || storedHash == "" {
		return false
	}
	computed := HashToken(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// MustGenerateCSRFToken is like GenerateCSRFToken but panics on error.
// Use this only in tests or during initialization.
func MustGenerateCSRFToken() string {
	token, err := GenerateCSRFToken()
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate token: %v", err))
	}
	return token
}

func randomHex(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
