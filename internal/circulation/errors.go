package circulation

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable class of a circulation error.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindNoAvailableCopy        Kind = "no_available_copy"
	KindInvalidDuration        Kind = "invalid_duration"
	KindInvalidInput           Kind = "invalid_input"
	KindPersonNotFound         Kind = "person_not_found"
	KindUnauthorized           Kind = "unauthorized"
	KindDuplicateBorrow        Kind = "duplicate_borrow"
	KindConcurrencyConflict    Kind = "concurrency_conflict"
	KindInternal               Kind = "internal"
)

// Error is returned by every Service operation. Op names the operation,
// Detail is the human-readable message and Err the underlying cause, if any.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNoAvailableCopy)
// works regardless of Op and Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrNoAvailableCopy        = &Error{Kind: KindNoAvailableCopy}
	ErrInvalidDuration        = &Error{Kind: KindInvalidDuration}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrPersonNotFound         = &Error{Kind: KindPersonNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrDuplicateBorrow        = &Error{Kind: KindDuplicateBorrow}
	ErrConcurrencyConflict    = &Error{Kind: KindConcurrencyConflict}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Conflict wraps a storage error that means the transaction lost a race.
// Repositories use it so the service can report ConcurrencyConflict without
// knowing the driver.
func Conflict(err error) error {
	return &Error{Kind: KindConcurrencyConflict, Detail: "transaction lost a race, retry", Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the calling layer may retry the operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}

// boundary turns any error escaping an operation into a typed *Error tagged
// with op.
func boundary(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &Error{Kind: KindInternal, Op: op, Detail: "storage failure", Err: err}
}
