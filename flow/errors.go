package flow

import (
	"errors"
	"fmt"
)

// Kind classifies a flow.Error the way model.ProviderErrorKind classifies a
// provider error in the teacher, generalized to every failure mode the
// runtime surfaces (spec.md §7).
type Kind string

const (
	KindStore            Kind = "store"
	KindProviderRateLimit Kind = "provider_rate_limit"
	KindProviderNetwork   Kind = "provider_network"
	KindProviderCacheMiss Kind = "provider_cache_miss"
	KindProviderInvalid   Kind = "provider_invalid_request"
	KindProviderTimeout   Kind = "provider_timeout"
	KindSchema            Kind = "schema"
	KindPause              Kind = "pause"
	KindNotPaused          Kind = "not_paused"
	KindCyclicDependency   Kind = "cyclic_dependency"
)

// Error is the runtime's single structured error type. All fields are
// unexported; construct one with New and inspect it with errors.As plus the
// accessor methods, mirroring model.ProviderError in the teacher.
type Error struct {
	kind      Kind
	op        string
	message   string
	retryable bool
	cause     error
}

// New constructs an Error. op names the operation that failed (e.g.
// "eventlog.Append", "provider.Complete"); message is a human-readable
// description; cause may be nil.
func New(kind Kind, op, message string, cause error) *Error {
	if kind == "" {
		panic("flow: Error kind must not be empty")
	}
	return &Error{
		kind:      kind,
		op:        op,
		message:   message,
		// KindProviderTimeout is deliberately excluded: spec.md §7 classifies
		// a provider timeout as fatal (fail-fast), unlike rate-limit/network
		// which are transient (§4.F point 5).
		retryable: kind == KindProviderRateLimit || kind == KindProviderNetwork,
		cause:     cause,
	}
}

// WithRetryable overrides the default retryability inferred from kind.
func (e *Error) WithRetryable(retryable bool) *Error {
	clone := *e
	clone.retryable = retryable
	return &clone
}

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Op() string      { return e.op }
func (e *Error) Message() string { return e.message }
func (e *Error) Retryable() bool { return e.retryable }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.op, e.message, e.kind, e.cause)
	}
	return fmt.Sprintf("%s: %s (%s)", e.op, e.message, e.kind)
}

func (e *Error) Unwrap() error { return e.cause }

// AsFlowError is the errors.As convenience helper for flow.Error, mirroring
// model.AsProviderError in the teacher.
func AsFlowError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	fe, ok := AsFlowError(err)
	return ok && fe.kind == kind
}
