package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mkrupp/nutrifit-client/internal/domain"
)

// APIError is returned for every non-2xx response.
// It matches domain.ErrNetworkOrServer, and domain.ErrUnauthorized for 401.
type APIError struct {
	StatusCode int
	// Message is the server supplied message, taken from the "error" field of
	// the body or, if absent, the "message" field. May be empty.
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}

	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap exposes the error categories of the response.
func (e *APIError) Unwrap() []error {
	if e.StatusCode == http.StatusUnauthorized {
		return []error{domain.ErrNetworkOrServer, domain.ErrUnauthorized}
	}

	return []error{domain.ErrNetworkOrServer}
}

func newAPIError(method, path string, statusCode int, body []byte) *APIError {
	var resp domain.ErrorResponse

	// best effort, non-JSON bodies leave the message empty
	_ = json.Unmarshal(body, &resp)

	message := resp.Error
	if message == "" {
		message = resp.Message
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Method:     method,
		Path:       path,
	}
}

// ServerMessage returns the server supplied message carried by err, if any.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	return ""
}
