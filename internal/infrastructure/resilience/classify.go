package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// ErrCallTimeout marks an attempt cut off by Config.CallTimeout while the caller's context was
// still live. It wraps the underlying context.DeadlineExceeded.
var ErrCallTimeout = errors.New("call timeout exceeded")

var (
	// Transient failures count against the breaker and surface to callers as temporary.
	Transient = ErrorClassification{Temporary: true, RecordFailure: true}
	// Permanent failures count against the breaker but are reported as-is.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures are the caller's fault and leave the breaker alone.
	Ignored = ErrorClassification{}
)

// ClassifyCommon settles the outcomes every adapter treats the same way. ok is false when the
// adapter must decide.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, ErrCallTimeout):
		return Transient, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return Ignored, false
}

// ClassifyHTTPStatus maps a downstream HTTP status onto breaker semantics.
func ClassifyHTTPStatus(code int) ErrorClassification {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return Transient
	}
	if code >= 500 {
		return Transient
	}
	return Ignored
}
