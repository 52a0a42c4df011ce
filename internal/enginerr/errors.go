// Package enginerr defines the typed failures returned by engine operations.
// Callers branch on these with errors.As; the HTTP layer maps each to a
// status code. Operations never degrade silently: a refused mutation or an
// empty selection pool always surfaces as one of these.
package enginerr

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NotFound builds a NotFoundError for the given entity kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// InvalidStateError reports an operation applied to an entity in the wrong
// lifecycle state, such as submitting to a completed session.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// InvalidState builds an InvalidStateError.
func InvalidState(op, reason string) error {
	return &InvalidStateError{Op: op, Reason: reason}
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// ConstraintError reports a rejected write that would violate a domain
// invariant, such as a prerequisite edge that would create a cycle.
type ConstraintError struct {
	Reason string
}

func (e *ConstraintError) Error() string {
	return e.Reason
}

// Constraint builds a ConstraintError.
func Constraint(format string, args ...any) error {
	return &ConstraintError{Reason: fmt.Sprintf(format, args...)}
}

// IsConstraint reports whether err is a ConstraintError.
func IsConstraint(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e)
}

// ExhaustedPoolError reports that item selection had no candidates left.
// This is a hard failure; sessions are never silently terminated by it.
type ExhaustedPoolError struct {
	SessionID string
}

func (e *ExhaustedPoolError) Error() string {
	return fmt.Sprintf("item pool exhausted for session %s", e.SessionID)
}

// ExhaustedPool builds an ExhaustedPoolError.
func ExhaustedPool(sessionID string) error {
	return &ExhaustedPoolError{SessionID: sessionID}
}

// IsExhaustedPool reports whether err is an ExhaustedPoolError.
func IsExhaustedPool(err error) bool {
	var e *ExhaustedPoolError
	return errors.As(err, &e)
}

// ConflictError reports a lost optimistic-concurrency race. The caller may
// retry the whole operation once against fresh state.
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: concurrent modification, retry", e.Op)
}

// Conflict builds a ConflictError.
func Conflict(op string) error {
	return &ConflictError{Op: op}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
