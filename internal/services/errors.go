package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by Login when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken is returned for any reset token that cannot be used.
	ErrInvalidOrExpiredToken = errors.New("password reset token is invalid or has expired")
	// ErrValidation marks errors caused by bad input.
	ErrValidation = errors.New("validation failed")
)

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
