package sync

import (
	"errors"
	"fmt"
)

// Kind classifies reconciliation failures so callers can decide whether to
// skip a rule, a target, or a single event.
type Kind int

const (
	// KindConfig is a calendar reference that does not resolve.
	KindConfig Kind = iota + 1
	// KindAuth is a missing or unusable session for an account.
	KindAuth
	// KindAPI is a remote read that failed after any fallback.
	KindAPI
	// KindApply is a failed create, update or delete of one event.
	KindApply
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindAPI:
		return "api"
	case KindApply:
		return "apply"
	default:
		return "unknown"
	}
}

// Error is a classified reconciliation error.
type Error struct {
	Kind Kind
	// Op names the step that failed, such as "fetch" or "insert".
	Op string
	// Ref is the calendar reference or event id involved.
	Ref string
	Err error
	// Degraded marks a read that returned an empty result instead of data.
	Degraded bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error during %s", e.Kind, e.Op)
	if e.Ref != "" {
		msg += " (" + e.Ref + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, ref string, err error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsDegraded reports whether err marks a degraded read.
func IsDegraded(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Degraded
}
