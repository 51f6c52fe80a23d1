// Package errkind classifies pipeline errors so callers can decide between
// retrying, continuing with the next stage, or aborting the run.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the classification attached to an error.
type Kind int

const (
	// KindUnknown is an error that carries no classification.
	KindUnknown Kind = iota
	// KindTransient is a provider failure worth retrying (timeouts, 5xx, rate limit signals).
	KindTransient
	// KindRecoverable is a per-language stage failure; the run continues.
	KindRecoverable
	// KindFatal aborts the whole run.
	KindFatal
	// KindConfig is a configuration problem that needs operator intervention.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRecoverable:
		return "recoverable"
	case KindFatal:
		return "fatal"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient marks err as retryable.
func Transient(op string, err error) error { return New(KindTransient, op, err) }

// Recoverable marks err as a per-language failure.
func Recoverable(op string, err error) error { return New(KindRecoverable, op, err) }

// Fatal marks err as run-aborting.
func Fatal(op string, err error) error { return New(KindFatal, op, err) }

// Config marks err as a configuration error.
func Config(op string, err error) error { return New(KindConfig, op, err) }

// Configf builds a configuration error from a format string.
func Configf(op, format string, args ...any) error {
	return New(KindConfig, op, fmt.Errorf(format, args...))
}

// Of returns the outermost Kind found in err's chain. Network timeouts with no
// explicit tag are reported as transient. A bare context deadline carries no
// kind.
func Of(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	// context.DeadlineExceeded is itself a net.Error; only timeouts raised by
	// a transport (url.Error and friends) count.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && netErr != context.DeadlineExceeded {
		return KindTransient
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Of(err) == KindTransient
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return Of(err) == KindConfig
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	return Of(err) == KindFatal
}

// TransientStatus reports whether an HTTP status code signals a retryable condition.
func TransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// FromHTTPStatus converts a non-2xx response into an error. 429, 408 and 5xx are
// transient; everything else fails immediately.
func FromHTTPStatus(op string, code int, body string) error {
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	err := fmt.Errorf("unexpected status %d: %s", code, body)
	if TransientStatus(code) {
		return Transient(op, err)
	}
	return New(KindUnknown, op, err)
}
