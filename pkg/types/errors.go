package types

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for the submission and execution paths. Validation,
// duplicate, and config errors surface synchronously to the caller;
// execution errors surface only through events.

// ErrBreakerOpen is returned when the circuit breaker rejects admission.
// Reported as an execution failure but distinguished in events.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerOpenReason is the EXECUTION_FAILED reason for breaker rejections.
const BreakerOpenReason = "BREAKER_OPEN"

// ValidationError reports a malformed order: non-positive quantity, unknown
// side, negative price, or empty symbol. Permanent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// DuplicateError reports that an idempotency fingerprint was already
// claimed. Permanent; carries the prior order for the caller to reference.
type DuplicateError struct {
	PriorOrderID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate submission: prior order %s", e.PriorOrderID)
}

// ConfigError reports an invalid risk limit update, e.g. a negative value.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid risk config: " + e.Reason
}

// TransientError wraps a downstream failure expected to resolve without
// operator action (timeout, temporary unavailability, rate limit).
// Eligible for retry.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient execution error: %s: %v", e.Reason, e.Err)
	}
	return "transient execution error: " + e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a downstream rejection for a business reason.
// Not retried.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent execution error: %s: %v", e.Reason, e.Err)
	}
	return "permanent execution error: " + e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient classifies an executor failure for the retry loop. Context
// deadline expiry counts as transient: the attempt timed out.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
