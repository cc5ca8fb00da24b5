package fio

import (
	"errors"
	"fmt"
	"net/http"
)

const conflictMessage = "Fio rejected the request (409 Conflict): the range reaches outside the token's " +
	"history window or the statement export is locked by a recent request. " +
	"Retry later, request a smaller date range, or raise chunk_days to issue fewer requests."

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func newAPIError(status int, body string) *APIError {
	msg := body
	switch {
	case status == http.StatusConflict:
		msg = conflictMessage
	case msg == "":
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fio api error (status %d): %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the provider.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}
