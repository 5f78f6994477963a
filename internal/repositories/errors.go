package repositories

import (
	"errors"
	"fmt"
)

// Error is a backend-agnostic RepositoryError used when a repository has to
// synthesise a categorised failure itself rather than translate a driver error.
type Error struct {
	op          string
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %s", e.op, e.message)
	}
	return e.message
}

// IsNotFound reports whether the error represents a missing record.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool {
	return e != nil && e.conflict
}

// IsUnavailable reports whether the error represents a transient outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// NewNotFoundError constructs a not-found repository error.
func NewNotFoundError(op, message string) *Error {
	return &Error{op: op, message: message, notFound: true}
}

// NewConflictError constructs a conflict repository error.
func NewConflictError(op, message string) *Error {
	return &Error{op: op, message: message, conflict: true}
}

// NewUnavailableError constructs a transient-failure repository error.
func NewUnavailableError(op, message string) *Error {
	return &Error{op: op, message: message, unavailable: true}
}

// IsNotFound reports whether err carries not-found repository semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries conflict repository semantics.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries transient-failure semantics.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
