package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrEmptyReply is returned when a backend answers with no text. It is retried.
var ErrEmptyReply = errors.New("empty reply from classifier backend")

// StatusError is a non-2xx HTTP answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// transientMarkers are matched case-insensitively against error text.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"resource exhausted",
	"resource_exhausted",
	"quota",
	"503",
	"service unavailable",
	"unavailable",
	"502",
	"bad gateway",
	"overloaded",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
}

// IsTransient reports whether err is worth retrying against the same model.
// Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrEmptyReply) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
