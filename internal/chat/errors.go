package chat

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a turn failure. Every failure surfaced by ProcessTurn
// maps to exactly one kind with a stable wire name.
type Kind int

const (
	// KindValidation is a caller bug (empty text, missing conversation).
	// Never retried; carries no partial state.
	KindValidation Kind = iota

	// KindAdmissionRejected means a turn for the conversation is already
	// in flight. Retry after the suggested delay.
	KindAdmissionRejected

	// KindQuotaExceeded means an upstream provider rate-limited the call.
	// Retryable after backoff.
	KindQuotaExceeded

	// KindAuthFailed means an upstream credential is invalid. Requires
	// operator intervention; never retried automatically.
	KindAuthFailed

	// KindTransient is a network or 5xx failure from a capability.
	// Retryable.
	KindTransient

	// KindStoreUnavailable means the transcript or vector store was
	// unreachable during a required step. Retryable.
	KindStoreUnavailable
)

// String returns the stable wire identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAdmissionRejected:
		return "admission_rejected"
	case KindQuotaExceeded:
		return "upstream_quota_exceeded"
	case KindAuthFailed:
		return "upstream_auth_error"
	case KindTransient:
		return "upstream_transient"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may retry the turn.
func (k Kind) Retryable() bool {
	switch k {
	case KindAdmissionRejected, KindQuotaExceeded, KindTransient, KindStoreUnavailable:
		return true
	default:
		return false
	}
}

// Error is the structured failure returned by ProcessTurn.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is a suggested delay before retrying. Set for
	// admission-rejected and quota failures, zero otherwise.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a turn *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var turnErr *Error
	if errors.As(err, &turnErr) {
		return turnErr, true
	}
	return nil, false
}
