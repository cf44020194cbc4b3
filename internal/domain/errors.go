package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types for consistent error handling across the wallet client.

// ErrPromptCancelled is returned when the user dismissed a PIN prompt.
var ErrPromptCancelled = errors.New("prompt cancelled")

// ErrValidation indicates local, pre-network validation failed.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrNetwork indicates the request to the backend did not complete.
type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrorPayload holds the message fields a backend error body may carry.
// Each field is empty unless the body had a non-empty string under that key.
type ErrorPayload struct {
	Detail  string
	Error   string
	Message string
}

// ErrBackendRejection indicates the backend answered with a non-2xx status.
type ErrBackendRejection struct {
	Operation string
	Status    int
	Payload   ErrorPayload
}

func (e *ErrBackendRejection) Error() string {
	return fmt.Sprintf("backend rejected %s with status %d", e.Operation, e.Status)
}

// SessionInvalid reports whether the rejection means the backend no longer
// recognizes the session. A 403 is only treated as such when it carries the
// missing-credentials detail, since a locked transaction PIN is also a 403.
func (e *ErrBackendRejection) SessionInvalid() bool {
	switch e.Status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		return strings.Contains(strings.ToLower(e.Payload.Detail), "credentials were not provided")
	}
	return false
}

// ErrNavigation indicates an unknown section identifier.
type ErrNavigation struct {
	Section string
}

func (e *ErrNavigation) Error() string {
	return fmt.Sprintf("section not found: %q", e.Section)
}

// ErrUnauthenticated indicates an operation was attempted without a session.
type ErrUnauthenticated struct {
	Operation string
}

func (e *ErrUnauthenticated) Error() string {
	return fmt.Sprintf("%s requires an authenticated session", e.Operation)
}

// ErrInvalidTransition indicates an operation is not allowed in the current session mode.
type ErrInvalidTransition struct {
	From      SessionMode
	Operation string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Operation, e.From)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// IsSessionInvalid reports whether err carries a session-invalid backend rejection.
func IsSessionInvalid(err error) bool {
	var rejection *ErrBackendRejection
	return errors.As(err, &rejection) && rejection.SessionInvalid()
}
