package models

import (
	"errors"
	"fmt"
)

// Kind classifies booking engine failures so callers can decide whether the
// user retries, refreshes, or never sees the error at all.
type Kind string

const (
	KindPolicyViolation    Kind = "policy_violation"
	KindConflict           Kind = "conflict"
	KindRaceLost           Kind = "race_lost"
	KindCalendarUnverified Kind = "calendar_unverified"
	KindCalendarStale      Kind = "calendar_stale"
	KindContention         Kind = "datastore_contention"
	KindCreditRedemption   Kind = "credit_redemption_failed"
	KindSideEffect         Kind = "side_effect_failure"
	KindUnknown            Kind = "unknown"
)

// Error is a classified booking failure. Message is rendered verbatim to the
// caller for user-correctable kinds.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error with a user-facing message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError classifies an underlying error without a user-facing message.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from err, or KindUnknown.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
