package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failure the server reported deliberately (validation error,
// bad credentials, missing entity), as opposed to a transport failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

func newAPIError(statusCode int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := http.StatusText(statusCode)
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else if payload.Message != "" {
			msg = payload.Message
		}
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}

// AsAPIError unwraps err into an *APIError if the server produced it.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}
