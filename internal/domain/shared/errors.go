package shared

import "errors"

// ErrorKind classifies a domain error so callers can map it to their own
// surface (HTTP status, retry policy) without matching on message strings.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "VALIDATION" // malformed input
	ErrorKindNotFound   ErrorKind = "NOT_FOUND"  // resource absent or owned by another organization
	ErrorKindConflict   ErrorKind = "CONFLICT"   // business rule violation detected during validation
	ErrorKindInternal   ErrorKind = "INTERNAL"   // unexpected infrastructure failure
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error with the internal kind
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Kind: ErrorKindInternal, Code: code, Message: message}
}

// NewValidationError creates a domain error for malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Kind: ErrorKindValidation, Code: code, Message: message}
}

// NewNotFoundError creates a domain error for an absent resource
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Kind: ErrorKindNotFound, Code: code, Message: message}
}

// NewConflictError creates a domain error for a business rule conflict
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Kind: ErrorKindConflict, Code: code, Message: message}
}

func kindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation domain error
func IsValidation(err error) bool { return kindOf(err) == ErrorKindValidation }

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool { return kindOf(err) == ErrorKindNotFound }

// IsConflict reports whether err is a conflict domain error
func IsConflict(err error) bool { return kindOf(err) == ErrorKindConflict }

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewConflictError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
)
