package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// CodeNotFound is the normalized code for a missing row.
const CodeNotFound = "NOT_FOUND"

var (
	// ErrNoAuthToken is returned by operations that need a session when none is stored.
	ErrNoAuthToken = errors.New("no access token available")

	// ErrNotFound is returned for a 404 or an empty single-row result.
	ErrNotFound = errors.New("not found")
)

// NetworkError is a request that produced no HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s: request timed out", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request hit its deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// RemoteError is a non-2xx response. Body is the raw response text.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("remote error: status %d", e.Status)
}

// Is makes a 404 match ErrNotFound.
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

// AuthError is an identity service failure with a user-facing message.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Code returns CodeNotFound for not-found errors and "" otherwise.
func Code(err error) string {
	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}
	return ""
}
