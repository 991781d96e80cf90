package whisk

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCookie is returned by Authenticate without a cookie.
	ErrNoCookie = errors.New("whisk: no cookie configured")

	// ErrNoAccessToken means the session endpoint answered without a token.
	ErrNoAccessToken = errors.New("whisk: session has no access token")

	// ErrNotAuthenticated is returned by calls made before a token exists.
	ErrNotAuthenticated = errors.New("whisk: not authenticated")
)

// APIError is a failed call to the remote service. Reason is the short,
// operator-facing text ("HTTP 429", "No panels").
type APIError struct {
	Op         string
	StatusCode int
	Reason     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("whisk: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("whisk: %s: %s", e.Op, e.Reason)
}

func (e *APIError) Unwrap() error { return e.Err }

// ShortReason returns Reason for progress display.
func (e *APIError) ShortReason() string { return e.Reason }

func statusError(op, prefix string, code int) *APIError {
	return &APIError{Op: op, StatusCode: code, Reason: fmt.Sprintf("%sHTTP %d", prefix, code)}
}
