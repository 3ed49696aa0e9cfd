// Package services defines the business logic for customers, their history
// (orders, interactions, tasks), merging, duplicate detection and auditing.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Every specific error belongs to exactly one kind (ErrNotFound, ErrConflict,
// ErrValidation, ErrTransient), so handlers can map whole families to HTTP
// status codes with errors.Is while still printing the specific message.
package services

import "errors"

// Error kinds.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient store error")
)

// kindError is a specific error that also matches its kind under errors.Is.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

// Customer errors.
var (
	// ErrCustomerNotFound indicates that a phone does not resolve to a customer.
	ErrCustomerNotFound = newError(ErrNotFound, "customer not found")

	// ErrCustomerExists is returned when creating a customer whose phone is taken.
	ErrCustomerExists = newError(ErrConflict, "customer already exists")

	// ErrCustomerHasHistory is returned when deleting a customer that still
	// owns orders, interactions or tasks.
	ErrCustomerHasHistory = newError(ErrConflict, "customer still has orders, interactions or tasks")

	// ErrInvalidPhone is returned for phones outside the 09xxxxxxxx format.
	ErrInvalidPhone = newError(ErrValidation, "phone must be a Taiwan mobile number (09xxxxxxxx)")

	// ErrInvalidCustomer is returned for malformed customer attributes.
	ErrInvalidCustomer = newError(ErrValidation, "invalid customer")
)

// Merge errors.
var (
	// ErrInvalidMerge is returned for malformed merge requests, before any
	// transaction is opened.
	ErrInvalidMerge = newError(ErrValidation, "invalid merge request")

	// ErrMergeConflict is returned when a concurrent merge or delete raced this
	// one. Callers should re-check which phones still exist before retrying.
	ErrMergeConflict = newError(ErrConflict, "merge conflicted with a concurrent change")
)

// Store errors.
var (
	// ErrStoreTimeout is returned when a transaction hit its deadline and was
	// rolled back. Retrying the whole operation is safe.
	ErrStoreTimeout = newError(ErrTransient, "store timeout")

	// ErrStoreFailure wraps other store failures that rolled back.
	ErrStoreFailure = newError(ErrTransient, "store failure")
)

// User, order, interaction and task errors.
var (
	ErrUserNotFound       = newError(ErrNotFound, "user not found")
	ErrUserExists         = newError(ErrConflict, "user with this email already exists")
	ErrInvalidUser        = newError(ErrValidation, "invalid user")
	ErrInvalidOrder       = newError(ErrValidation, "invalid order")
	ErrInvalidInteraction = newError(ErrValidation, "invalid interaction")
	ErrTaskNotFound       = newError(ErrNotFound, "task not found")
	ErrInvalidTask        = newError(ErrValidation, "invalid task")

	// ErrInvalidTransition is returned when a task status change is not
	// allowed from the task's current status.
	ErrInvalidTransition = newError(ErrConflict, "task status transition not allowed")
)
