package gateway

import "errors"

// ErrCircuitOpen is returned when the breaker rejects a call without a
// network attempt. Never retried.
var ErrCircuitOpen = errors.New("circuit breaker open")

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
