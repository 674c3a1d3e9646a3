package shared

import "errors"

// ErrorKind classifies a DomainError for callers that need to decide
// whether to reload, retry or just show the rejection.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindPrecondition   ErrorKind = "precondition"
	KindStaleReference ErrorKind = "stale_reference"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidInput   ErrorKind = "invalid_input"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Kind    ErrorKind         `json:"kind"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so that a sentinel and an instance
// carrying a more specific message compare equal under errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of the error with a more specific message.
func (e *DomainError) WithMessage(message string) *DomainError {
	c := *e
	c.Message = message
	return &c
}

// WithDetails returns a copy of the error carrying field-level details.
func (e *DomainError) WithDetails(details map[string]string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// NewDomainError creates a new domain error of kind invalid_input
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindInvalidInput,
	}
}

// NewKindError creates a domain error of the given kind
func NewKindError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// NewValidationError creates a validation error with a field -> message map
func NewValidationError(message string, details map[string]string) *DomainError {
	return &DomainError{
		Code:    ErrValidation.Code,
		Message: message,
		Kind:    KindValidation,
		Details: details,
	}
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Common domain errors
var (
	ErrNotFound            = NewKindError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewKindError(KindPrecondition, "ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrValidation          = NewKindError(KindValidation, "VALIDATION_FAILED", "Validation failed")
	ErrInvalidState        = NewKindError(KindPrecondition, "INVALID_STATE", "Operation not allowed in current state")
	ErrStaleReference      = NewKindError(KindStaleReference, "STALE_REFERENCE", "A referenced record no longer exists")
	ErrConcurrencyConflict = NewKindError(KindConflict, "CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrDuplicateRequest    = NewKindError(KindConflict, "DUPLICATE_REQUEST", "Request was already processed")
)
