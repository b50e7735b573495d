package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an engine error for propagation decisions.
type Kind string

const (
	// KindCollection marks a single provider×region listing failure.
	// Isolated and non-fatal unless every pair fails.
	KindCollection Kind = "collection"

	// KindRegistryRead marks a registry listing failure for one node
	// path. Fatal for that scope's plan, non-fatal for the run.
	KindRegistryRead Kind = "registry-read"

	// KindApplyTransient marks a retryable apply failure (timeout,
	// 5xx, rate limit).
	KindApplyTransient Kind = "apply-transient"

	// KindApplyPermanent marks a non-retryable apply failure
	// (validation, 4xx other than 429, not-found on delete).
	KindApplyPermanent Kind = "apply-permanent"

	// KindPreflight marks registry unreachability before any mutation.
	// Always fatal.
	KindPreflight Kind = "preflight"

	// KindPolicyViolation marks a plan entry that escaped policy
	// filtering. An internal invariant breach, logged as a bug.
	KindPolicyViolation Kind = "policy-violation"
)

// Error is the engine's typed error carrying classification metadata.
type Error struct {
	Kind     Kind
	Provider string
	Scope    string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Scope != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Scope)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed engine error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed engine error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithProvider attaches the originating provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithScope attaches the provider×region or node-path scope.
func (e *Error) WithScope(scope string) *Error {
	e.Scope = scope
	return e
}

// KindOf extracts the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried by the executor.
func IsTransient(err error) bool {
	return KindOf(err) == KindApplyTransient
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return KindOf(err) == KindPreflight
}
