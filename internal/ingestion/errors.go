package ingestion

import (
	"context"
	"errors"
	"net"
)

// ErrMalformedResponse is returned when a provider body cannot be parsed.
var ErrMalformedResponse = errors.New("malformed provider response")

// transient is implemented by provider errors that know their own class.
type transient interface {
	Transient() bool
}

// IsTransient reports whether err is a per-call provider failure that a batch
// should count and skip: network errors, timeouts, malformed bodies and
// non-success statuses. Cancellation of the run itself is not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedResponse) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
