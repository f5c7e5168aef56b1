package store

import "errors"

// Sentinel errors returned by Store methods. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned when caller-supplied data violates a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when a write would violate an invariant.
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed is returned when an operation is attempted before its
	// required prior step (e.g. create_pr without a branch).
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTransientIO wraps a storage failure the caller should retry.
	ErrTransientIO = errors.New("transient storage error")
)
