package fakebackend

import "net/http"

// apiError is a rejection rendered as a JSON object body.
type apiError struct {
	status int
	body   map[string]any
}

func (e *apiError) Error() string {
	if d, ok := e.body["detail"].(string); ok {
		return d
	}
	return http.StatusText(e.status)
}

func detail(status int, msg string) *apiError {
	return &apiError{status: status, body: map[string]any{"detail": msg}}
}

// fieldError mimics a serializer validation failure: {"field": ["msg"]}.
func fieldError(field, msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, body: map[string]any{field: []string{msg}}}
}

var errNotAuthenticated = detail(http.StatusForbidden, "Authentication credentials were not provided.")
