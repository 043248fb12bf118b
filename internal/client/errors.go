package client

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendStatus matches any *StatusError.
	ErrBackendStatus = errors.New("backend returned failure status")
	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("backend unreachable")
)

// StatusError is returned when the backend answers with a non-success status code.
type StatusError struct {
	StatusCode int
	// StatusText is the reason phrase of the status line, e.g. "Internal Server Error".
	StatusText string
	// Body holds at most maxErrorBody bytes of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, e.StatusText)
}

// Is reports whether target is ErrBackendStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrBackendStatus
}

// TransportError is returned when no response was obtained at all.
type TransportError struct {
	Op  string
	Err error
}

// Error returns the cause's message so it can be shown to the user as-is.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrTransport.Error()
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
