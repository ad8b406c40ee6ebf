// Package apperror defines the closed set of failures returned by the clinic
// billing core. Callers classify them with errors.As / errors.Is only.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotAvailable       = errors.New("room_not_available")
	ErrPatientAlreadyAdmitted = errors.New("patient_already_admitted")
	ErrRoomBusy               = errors.New("room_busy")
	ErrAlreadyDischarged      = errors.New("already_discharged")
	ErrStaffNotAuthorized     = errors.New("staff_not_authorized")
)

type NotFoundError struct {
	Entity string
	Key    string
}

func NotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func InvalidStateTransition(entity, from, to string) error {
	return &InvalidStateTransitionError{Entity: entity, From: from, To: to}
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

type ConcurrencyConflictError struct {
	Entity string
	ID     string
}

func ConcurrencyConflict(entity, id string) error {
	return &ConcurrencyConflictError{Entity: entity, ID: id}
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}

type ValidationError struct {
	Field  string
	Reason string
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type AlreadyExistsError struct {
	Entity string
	Key    string
}

func AlreadyExists(entity, key string) error {
	return &AlreadyExistsError{Entity: entity, Key: key}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// InvalidStateError rejects an operation that is not a transition by itself
// (recording a payment, refunding) on an entity in the wrong state.
type InvalidStateError struct {
	Entity    string
	State     string
	Operation string
}

func InvalidState(entity, state, operation string) error {
	return &InvalidStateError{Entity: entity, State: state, Operation: operation}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Operation, e.Entity, e.State)
}

type ExternalProviderError struct {
	Provider string
	Err      error
}

func ExternalProvider(provider string, err error) error {
	return &ExternalProviderError{Provider: provider, Err: err}
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Provider, e.Err)
}

func (e *ExternalProviderError) Unwrap() error {
	return e.Err
}

// IsConcurrencyConflict is the retry predicate used by optimistic workflows.
func IsConcurrencyConflict(err error) bool {
	var conflict *ConcurrencyConflictError
	return errors.As(err, &conflict)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
