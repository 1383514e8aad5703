package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest work factor accepted for stored passwords.
const MinBcryptCost = 10

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var (
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes bytes.
	ErrPasswordTooLong = errors.New("password too long")
)

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword reports ErrPasswordMismatch when password does not produce hash.
func ComparePassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
