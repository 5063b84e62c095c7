package core

import (
	"errors"
	"fmt"
)

// Gate rejections are expected outcomes, not failures; callers should
// compare with errors.Is and report them to the user without logging
// them as errors.
var (
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrSubscriptionRequired = errors.New("subscription required")

	// ErrInvariantViolation marks a state that is defined impossible,
	// e.g. a shard reassignment. The operation must abort.
	ErrInvariantViolation = errors.New("invariant violation")
)

// FormatError reports malformed or unrecognized export input. It is not
// retried; the reason is surfaced verbatim to the caller.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}

// TransportError wraps a failure of an external contract (embedding,
// vector store, completion). Retryable at the batch level.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Outcome is the logical result code surfaced at the API boundary.
type Outcome string

const (
	OutcomeOK                   Outcome = "ok"
	OutcomeSubscriptionRequired Outcome = "subscription_required"
	OutcomeQuotaExceeded        Outcome = "quota_exceeded"
	OutcomeFormatError          Outcome = "format_error"
	OutcomeTransportFailure     Outcome = "transport_failure"
)

// OutcomeForError maps an engine error onto its logical outcome. Unknown
// errors map to transport failure, the only retryable class.
func OutcomeForError(err error) Outcome {
	var fe *FormatError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrSubscriptionRequired):
		return OutcomeSubscriptionRequired
	case errors.Is(err, ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	case errors.As(err, &fe):
		return OutcomeFormatError
	default:
		return OutcomeTransportFailure
	}
}
