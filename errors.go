package queryclient

import (
	"context"
	"errors"
	"fmt"
)

// TransportError reports a failed network attempt: unreachable endpoint,
// per-attempt timeout, non-2xx status, or an unreadable response body.
// Transport errors are retryable.
type TransportError struct {
	// StatusCode is zero when the request never produced a response.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is a single protocol-level error carried inside a well-formed
// response. The retry controller never retries these; the configured
// ErrorPolicy decides what the caller sees.
type ResponseError struct {
	Message    string         `json:"message"`
	Path       []string       `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *ResponseError) Error() string { return e.Message }

// ExhaustedError wraps the last transport error once every retry attempt has
// been spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsCancellation reports whether err stems from the caller abandoning the
// request, as opposed to the network or the server failing. Cancellations are
// never retried and never cached.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// retryable reports whether an attempt failure may be re-attempted: transport
// errors and per-attempt timeouts qualify, cancellations and protocol errors
// do not.
func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
