package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ResetTokenLength is the number of random bytes in a password-reset token (256 bits).
const ResetTokenLength = 32

// NewResetToken returns a hex-encoded random reset token and the digest to store for it.
func NewResetToken() (token string, digest string, err error) {
	buf := make([]byte, ResetTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA-256 digest of a reset token for lookup.
func HashResetToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
