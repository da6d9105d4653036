package apperr

import (
	"errors"
	"fmt"
)

// SecurityError blocks a pointer at creation or critical-update time.
// Never retried automatically.
type SecurityError struct {
	Code string
	Err  error
}

func (e *SecurityError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("security: %s: %v", e.Code, e.Err)
	}
	return "security: " + e.Code
}

func (e *SecurityError) Unwrap() error { return e.Err }

func NewSecurity(code string, err error) *SecurityError {
	return &SecurityError{Code: code, Err: err}
}

// NotFoundError marks an operation that referenced a pointer id absent
// from the registry.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return "pointer not found: " + e.ID
}

func NewNotFound(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// FetchError carries the underlying cause of a failed content retrieval.
type FetchError struct {
	PointerType string
	Err         error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("fetch (%s): %v", e.PointerType, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetch(pointerType string, err error) *FetchError {
	return &FetchError{PointerType: pointerType, Err: err}
}

// ValidationError means a type-specific validator failed to execute.
// Distinct from a target being unreachable, which is a normal broken status.
type ValidationError struct {
	PointerType string
	Err         error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("validation (%s): %v", e.PointerType, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidation(pointerType string, err error) *ValidationError {
	return &ValidationError{PointerType: pointerType, Err: err}
}

func IsSecurity(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
