package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes coordinator failures.
type Kind string

const (
	// KindNotFound marks a missing connection, profile, or lease. Callers
	// recover with a documented default; it is never fatal on its own.
	KindNotFound Kind = "not_found"
	// KindLeaseConflict marks concurrent reuse of a correlation key.
	KindLeaseConflict Kind = "lease_conflict"
	// KindUnavailable marks a failed or timed-out collaborator call
	// (store, telephony, translation, realtime channel).
	KindUnavailable Kind = "unavailable"
	// KindAlreadyTerminal marks a transition applied to a leg that already
	// reached its terminal state. Always treated as success by callers.
	KindAlreadyTerminal Kind = "already_terminal"
	// KindInvalid marks a malformed request or payload.
	KindInvalid Kind = "invalid"
)

// Fault is the canonical error shape across the bridge packages.
type Fault struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	switch {
	case f.Err != nil && f.Message != "":
		return fmt.Sprintf("%s: %s: %s: %v", f.Op, f.Kind, f.Message, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
	case f.Message != "":
		return fmt.Sprintf("%s: %s: %s", f.Op, f.Kind, f.Message)
	default:
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// New creates a Fault with a message.
func New(kind Kind, op, message string) *Fault {
	return &Fault{Kind: kind, Op: op, Message: message}
}

// Wrap creates a Fault around an underlying error.
func Wrap(kind Kind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err, or "" if err is not a Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) && f != nil {
		return f.Kind
	}
	return ""
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsLeaseConflict(err error) bool { return KindOf(err) == KindLeaseConflict }
func IsUnavailable(err error) bool   { return KindOf(err) == KindUnavailable }

// IsAlreadyTerminal reports whether err marks a no-op terminal transition.
func IsAlreadyTerminal(err error) bool { return KindOf(err) == KindAlreadyTerminal }
