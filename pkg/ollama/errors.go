package ollama

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Sentinel errors returned (wrapped) by the client. Use errors.Is.
var (
	// ErrServiceUnavailable means the generation service could not be reached.
	ErrServiceUnavailable = errors.New("generation service unavailable")
	// ErrGenerationTimeout means a call exceeded its deadline.
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrBadResponse means the service answered with a non-success status or
	// a body that could not be decoded.
	ErrBadResponse = errors.New("bad response from generation service")
)

// classify maps a transport error onto the client's sentinels.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrGenerationTimeout
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return ErrGenerationTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrGenerationTimeout
	}
	return ErrServiceUnavailable
}

// retryable reports whether a failed call may be attempted again.
func retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrGenerationTimeout)
}
