package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, user-facing category of a failure.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindConflict            ErrorKind = "conflict"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindWalletLocked        ErrorKind = "wallet_locked"
	KindIllegalTransition   ErrorKind = "illegal_transition"
	KindInvalidRecurrence   ErrorKind = "invalid_recurrence"
	KindDuplicate           ErrorKind = "duplicate"
	KindTransient           ErrorKind = "transient"
)

// Error carries a kind plus, for conflicts, the intervals that collided.
type Error struct {
	Kind      ErrorKind
	Message   string
	Conflicts []Interval
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrWalletLocked        = &Error{Kind: KindWalletLocked, Message: "wallet is locked"}
	ErrIllegalTransition   = &Error{Kind: KindIllegalTransition, Message: "illegal transition"}
	ErrInvalidRecurrence   = &Error{Kind: KindInvalidRecurrence, Message: "invalid recurrence"}
	// ErrDuplicate is raised by stores when a uniqueness constraint rejects a write.
	ErrDuplicate = &Error{Kind: KindDuplicate, Message: "duplicate key"}
	// ErrTransient marks optimistic-concurrency aborts; only these are retried.
	ErrTransient = &Error{Kind: KindTransient, Message: "transient store conflict"}
)

func NewValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(what, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func NewConflictError(message string, conflicts []Interval) error {
	return &Error{Kind: KindConflict, Message: message, Conflicts: conflicts}
}

func NewIllegalTransitionError(from, to BookingStatus) error {
	return &Error{Kind: KindIllegalTransition, Message: fmt.Sprintf("illegal transition %s -> %s", from, to)}
}

// KindOf returns the kind of err, or "" for infrastructure faults.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ConflictsOf returns the colliding intervals attached to a conflict error.
func ConflictsOf(err error) []Interval {
	var e *Error
	if errors.As(err, &e) {
		return e.Conflicts
	}
	return nil
}
