package httputil

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: connection errors,
// timeouts, and 5xx responses.
type TransientError struct {
	Status int // 0 when the request never produced a response
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient http error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError marks a 429 response. Retried with a longer backoff than
// ordinary transient failures.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// DecodeError marks a malformed response body. Never retried.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError marks a non-retryable HTTP status (4xx other than 429).
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err should be retried with normal backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err is a 429 rate-limit rejection.
func IsRateLimited(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsDecode reports whether err is a malformed-response failure.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
