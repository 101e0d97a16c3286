package pixiv

import (
	"errors"
	"fmt"
)

// AuthError means no usable credential exists. Fatal for the current run;
// never retried inline.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth error: " + e.Reason
}

// RemoteError is a transient platform failure classified by an HTTP-like
// status code. Strategies route it through the rate limiter's error handler.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// ErrNotFound marks a work that no longer exists on the platform.
var ErrNotFound = &RemoteError{StatusCode: 404, Message: "not found"}

// ErrorStatus extracts the status code from a remote error chain, 0 when the
// error is not remote.
func ErrorStatus(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	return 0
}

// IsNotFound reports whether the error chain carries a 404.
func IsNotFound(err error) bool {
	return ErrorStatus(err) == 404
}
