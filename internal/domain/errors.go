package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed is returned when local input is missing or cannot be parsed.
	// It is always returned before any network request is made.
	ErrValidationFailed = errors.New("validation failed")
	// ErrAuthenticationFailed is returned when the remote login rejects the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRegistrationFailed is returned when the remote account creation fails.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrNetworkOrServer is returned for transport failures and non-2xx responses.
	ErrNetworkOrServer = errors.New("network or server error")
	// ErrUnauthorized is returned when an authenticated request is rejected with 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCredentialStore is returned when the credential store cannot be written.
	ErrCredentialStore = errors.New("credential store error")
)

// UserError attaches a user-facing message to an error category.
type UserError struct {
	Kind    error
	Message string
	Err     error
}

// NewUserError creates a UserError for the given category, message and cause.
func NewUserError(kind error, message string, cause error) *UserError {
	return &UserError{Kind: kind, Message: message, Err: cause}
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is to match both the category and the cause.
func (e *UserError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// UserMessage returns the user-facing message carried by err, or fallback.
func UserMessage(err error, fallback string) string {
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.Message != "" {
		return userErr.Message
	}

	return fallback
}

// Validationf returns a UserError in the ErrValidationFailed category.
func Validationf(format string, args ...any) *UserError {
	return NewUserError(ErrValidationFailed, fmt.Sprintf(format, args...), nil)
}
