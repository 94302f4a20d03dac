// Package generrors provides the structured error taxonomy and retry
// configuration used throughout the recommendation core, in place of
// propagating raw transport errors.
package generrors

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and propagation purposes.
type Kind int8

const (
	// Cancelled is a caller-initiated abort; propagated unchanged.
	Cancelled Kind = iota
	// DeadlineExceeded is a per-request timeout; HealthMonitor records a failure.
	DeadlineExceeded
	// RateLimitRejected means the admission queue was full or the deadline
	// passed before admission; HealthMonitor is not affected.
	RateLimitRejected
	// BackendTransient covers 5xx, connection errors, and malformed 2xx
	// bodies; retried per ResiliencePolicy.
	BackendTransient
	// BackendAuth covers 401/403; never retried, fatal for this fetch.
	BackendAuth
	// BackendBadRequest covers 4xx other than auth/rate-limit; never
	// retried, fatal for this fetch.
	BackendBadRequest
	// ParseEmpty means the response parsed to zero items; not fatal, the
	// iteration loop simply terminates early.
	ParseEmpty
	// InvalidConfig is a settings-validation failure; fatal at
	// construction, never at runtime.
	InvalidConfig
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case RateLimitRejected:
		return "rate_limit_rejected"
	case BackendTransient:
		return "backend_transient"
	case BackendAuth:
		return "backend_auth"
	case BackendBadRequest:
		return "backend_bad_request"
	case ParseEmpty:
		return "parse_empty"
	case InvalidConfig:
		return "invalid_config"
	default:
		return "invalid"
	}
}

// RetryConfig describes exponential backoff for a retryable kind.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs gives each kind its default retry behavior. Kinds
// absent from this map (or explicitly zeroed) are never retried.
//
//nolint:gochecknoglobals // package-level configuration defaults
var DefaultRetryConfigs = map[Kind]RetryConfig{
	BackendTransient: {
		MaxRetries:    2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
	DeadlineExceeded: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	RateLimitRejected: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	BackendAuth: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	BackendBadRequest: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	ParseEmpty: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	Cancelled: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	InvalidConfig: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
}

// Error is a classified error carrying retry metadata and an optional
// redacted body stub.
type Error struct {
	Err        error
	Message    string
	BodyStub   string
	Kind       Kind
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("recoforge error (%s): %s", e.Kind.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("recoforge error (%s): %v", e.Kind.String(), e.Err)
	}
	return fmt.Sprintf("recoforge error (%s): status %d", e.Kind.String(), e.StatusCode)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether this error's kind should be retried. Uses a
// blocklist: everything retries unless explicitly excluded.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case BackendAuth, BackendBadRequest, Cancelled, InvalidConfig, RateLimitRejected, ParseEmpty:
		return false
	default:
		return true
	}
}

// RetryConfig returns the retry configuration for this error's kind.
func (e *Error) RetryConfig() RetryConfig {
	if c, ok := DefaultRetryConfigs[e.Kind]; ok {
		return c
	}
	return RetryConfig{MaxRetries: 0, BackoffFactor: 1.0}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the classified kind of err, or BackendTransient as the
// conservative default for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return BackendTransient
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewWithStatus creates a classified error carrying an HTTP status code.
func NewWithStatus(kind Kind, statusCode int, message string) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Message: message}
}

// NewWithCause wraps an underlying error with a classification.
func NewWithCause(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// SanitizePrompt returns a safe representation of a long string for logging:
// for text under maxChars it is returned unchanged; otherwise the first/last
// portions are kept alongside a correlation hash of the full content.
func SanitizePrompt(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if halfMax*2 >= len(text) {
		return text
	}

	first := text[:halfMax]
	last := text[len(text)-halfMax:]
	hash := sha256.Sum256([]byte(text))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(text), hashStr, last)
}
