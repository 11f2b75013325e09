package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("object not found")

// StoreError wraps a failed object-store call.
//
// Service is true when the store itself answered with an error; it is false
// for transport failures where no answer arrived.
type StoreError struct {
	Op         string
	Key        string
	StatusCode int
	Service    bool
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("object store %s %q: status %d: %v", e.Op, e.Key, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("object store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsTransient reports whether a retry might succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	if !se.Service {
		return true
	}
	switch {
	case se.StatusCode >= 500:
		return true
	case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// IsServiceError reports whether err carries an answer from the store.
func IsServiceError(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Service
	}
	return false
}
