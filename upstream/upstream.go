// Package upstream contains the HTTP clients for the two proxied
// services — the Airtable REST API and the Anthropic Messages API —
// plus the shared error taxonomy used to translate their failures into
// dashboard-facing HTTP statuses.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Upstream names used in errors, logs, and metric labels.
const (
	NameAirtable = "airtable"
	NameChat     = "anthropic"
)

// Kind classifies an upstream failure.
type Kind int

// Failure kinds. Timeout and unreachable are transport-level; rejected
// means the upstream answered with a non-2xx status.
const (
	KindTimeout Kind = iota + 1
	KindUnreachable
	KindRejected
)

// String returns the metric-label form of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure.
type Error struct {
	// Upstream is NameAirtable or NameChat.
	Upstream string
	Kind     Kind
	// StatusCode is the upstream's status for KindRejected, 0 otherwise.
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Upstream, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Upstream, e.Kind, e.Message)
}

// Unwrap supports errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the failure to the status the relay reports. Timeouts
// surface as 504 for the chat upstream and 502 for the data upstream;
// unreachable upstreams as 503; rejections pass the upstream status
// through.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindTimeout:
		if e.Upstream == NameChat {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindUnreachable:
		return http.StatusServiceUnavailable
	case KindRejected:
		if e.StatusCode > 0 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// transportError classifies a client-side failure (no HTTP response) as
// timeout or unreachable.
func transportError(upstream string, err error) *Error {
	kind := KindUnreachable
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{
		Upstream: upstream,
		Kind:     kind,
		Message:  err.Error(),
		Err:      err,
	}
}

// rejectedError wraps a non-2xx upstream response.
func rejectedError(upstream string, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Upstream:   upstream,
		Kind:       KindRejected,
		StatusCode: status,
		Message:    message,
	}
}
