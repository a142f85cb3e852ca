package ai

import (
	"context"
	"errors"
	"net"
)

// ErrUnavailable means the provider is not usable at all (no key, no
// endpoint); callers should not retry.
var ErrUnavailable = errors.New("ai provider unavailable")

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks an error as retryable (timeout, throttling).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
