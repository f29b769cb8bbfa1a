package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code and message, so that a wrapped
// sentinel compares equal to the bare sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches cause to a sentinel, keeping its code and message.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeExtraction            = "EXTRACTION_ERROR"
	ErrCodeIndexing              = "INDEXING_ERROR"
	ErrCodeIndexingInProgress    = "INDEXING_IN_PROGRESS"
	ErrCodeConfigurationMismatch = "CONFIGURATION_MISMATCH"
	ErrCodeProvider              = "PROVIDER_ERROR"
	ErrCodeNotReady              = "NOT_READY"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "invalid chunk configuration")
	ErrUnsupportedWorkbook  = NewDomainError(ErrCodeValidation, "unsupported workbook format")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrIndexNotFound    = NewDomainError(ErrCodeNotFound, "index not found")
	ErrWorkbookNotFound = NewDomainError(ErrCodeNotFound, "workbook not found")
	ErrIndexJobNotFound = NewDomainError(ErrCodeNotFound, "index job not found")
)

// Pipeline errors
var (
	ErrExtraction            = NewDomainError(ErrCodeExtraction, "workbook extraction failed")
	ErrIndexing              = NewDomainError(ErrCodeIndexing, "index build failed")
	ErrIndexingInProgress    = NewDomainError(ErrCodeIndexingInProgress, "an index rebuild is already running")
	ErrConfigurationMismatch = NewDomainError(ErrCodeConfigurationMismatch, "embedding configuration does not match the index")
	ErrProvider              = NewDomainError(ErrCodeProvider, "model provider call failed")
	ErrNotReady              = NewDomainError(ErrCodeNotReady, "index is not ready")
	ErrStorageOperationFail  = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// Workbook storage errors
var (
	ErrArchiveNotConfigured = NewDomainError(ErrCodeNotFound, "workbook archive is not configured")
	ErrEmptyUpload          = NewDomainError(ErrCodeValidation, "uploaded workbook is empty")
)
