// Package provision implements the idempotent resource provisioning
// primitives shared by every deployment target: ensure-or-create, typed
// provisioning errors, deterministic naming, and the long-running
// operation waiter.
package provision

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a provisioning failure for control flow. Targets
// switch on the class instead of inspecting provider status codes ad hoc.
type ErrorClass string

const (
	// ClassNotFound means the resource does not exist on the provider.
	// During ensure-or-create this is not an error, it triggers creation.
	ClassNotFound ErrorClass = "not-found"

	// ClassConflict means the resource or assignment already exists.
	// During role/secret assignment this is treated as already satisfied.
	ClassConflict ErrorClass = "conflict"

	// ClassTimeout means a long-running operation did not finish within
	// the waiter's deadline.
	ClassTimeout ErrorClass = "timeout"

	// ClassProvider is any other provider failure. It propagates unchanged
	// to the caller.
	ClassProvider ErrorClass = "provider"
)

// Error is a classified provisioning failure with resource context.
type Error struct {
	// Class is the failure classification.
	Class ErrorClass

	// Op is the operation being performed (e.g. "ensure", "delete").
	Op string

	// Resource identifies the resource involved.
	Resource string

	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s %s: %v", e.Class, e.Op, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s] %s %s", e.Class, e.Op, e.Resource)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFound creates a not-found error for the named resource.
func NewNotFound(resource string, err error) *Error {
	return &Error{Class: ClassNotFound, Op: "get", Resource: resource, Err: err}
}

// NewConflict creates a conflict error for the named resource.
func NewConflict(resource string, err error) *Error {
	return &Error{Class: ClassConflict, Op: "create", Resource: resource, Err: err}
}

// NewTimeout creates a timeout error for the named operation.
func NewTimeout(op string, err error) *Error {
	return &Error{Class: ClassTimeout, Op: op, Err: err}
}

// NewProviderError wraps an unclassified provider failure.
func NewProviderError(op, resource string, err error) *Error {
	return &Error{Class: ClassProvider, Op: op, Resource: resource, Err: err}
}

// IsNotFound reports whether err is classified as not-found.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassNotFound
}

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassConflict
}

// IsTimeout reports whether err is classified as a timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassTimeout
}
