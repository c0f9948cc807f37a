package errors

import (
	"errors"
	"fmt"
)

// PreconditionError marks a failure the reconciler cannot work around:
// missing privileges, a held lock, or an unreachable system service. The
// caller reports it and exits nonzero without mutating anything.
type PreconditionError struct {
	Code string
	Err  error
}

func (e *PreconditionError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Precondition wraps err as a fatal precondition failure with the given code.
func Precondition(code string, err error) error {
	return &PreconditionError{Code: code, Err: err}
}

// Preconditionf is Precondition with a formatted message and no cause.
func Preconditionf(code, format string, args ...any) error {
	return &PreconditionError{Code: code, Err: fmt.Errorf(format, args...)}
}

// IsPrecondition reports whether any error in err's chain is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// AbsenceCondition marks an expected-absence outcome: the operator asked for
// hardware that is not plugged in right now. It is not a failure; callers log
// a warning, skip the run, and exit zero so boot-time units do not flap.
type AbsenceCondition struct {
	Code string
	Err  error
}

func (e *AbsenceCondition) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *AbsenceCondition) Unwrap() error { return e.Err }

// Absence wraps err as a soft-skip condition with the given code.
func Absence(code string, err error) error {
	return &AbsenceCondition{Code: code, Err: err}
}

// Absencef is Absence with a formatted message and no cause.
func Absencef(code, format string, args ...any) error {
	return &AbsenceCondition{Code: code, Err: fmt.Errorf(format, args...)}
}

// IsAbsence reports whether any error in err's chain is an AbsenceCondition.
func IsAbsence(err error) bool {
	var ac *AbsenceCondition
	return errors.As(err, &ac)
}

// Fault marks a fatal operational failure with its taxonomy code. Unlike a
// precondition it says nothing about mutation state; steps completed before
// the failure stay as they are.
type Fault struct {
	Code string
	Err  error
}

func (e *Fault) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Fault) Unwrap() error { return e.Err }

// Fail wraps err as an operational failure with the given code.
func Fail(code string, err error) error {
	return &Fault{Code: code, Err: err}
}

// Code extracts the machine-readable code from err, walking the chain.
// Returns ErrInternal when no typed condition is present.
func Code(err error) string {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var ac *AbsenceCondition
	if errors.As(err, &ac) {
		return ac.Code
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ErrInternal
}
