package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a specific object or metadata record does not
// exist. Callers branch on it with errors.Is; it is never retried.
var ErrNotFound = errors.New("object not found")

// BackendError wraps every other storage failure (permission, network,
// credentials, malformed bucket). Idempotent operations may be retried by
// the caller.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s storage: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(backend, op string, err error) error {
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// IsNotFound reports whether err represents a missing object
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
