// Package domain contains the core business entities for pan storage.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations and storage failures.
// Each sentinel belongs to exactly one Kind so callers can pick a retry policy
// without matching on messages.

var (
	// ===========================================
	// Validation Errors
	// ===========================================

	// ErrValidation indicates a required field was missing or blank.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidChunkNumber indicates the chunk number is outside 1..totalChunks.
	ErrInvalidChunkNumber = errors.New("chunk number must be between 1 and total chunks")

	// ErrSizeMismatch indicates the stream ended before the declared size was read.
	ErrSizeMismatch = errors.New("stream shorter than declared size")

	// ===========================================
	// Storage Errors
	// ===========================================

	// ErrStorageIO indicates a physical read or write against a backend failed.
	ErrStorageIO = errors.New("storage I/O failure")

	// ErrBackendUnsupported indicates the configured backend cannot serve the call.
	ErrBackendUnsupported = errors.New("storage backend not supported")

	// ===========================================
	// Physical File Errors
	// ===========================================

	// ErrPhysicalFileNotFound indicates no stored content matches the lookup.
	ErrPhysicalFileNotFound = errors.New("physical file not found")

	// ErrPhysicalFileExists indicates content with the same fingerprint is already stored.
	ErrPhysicalFileExists = errors.New("physical file already exists")

	// ===========================================
	// Chunk Errors
	// ===========================================

	// ErrChunksNotFound indicates a merge was requested with no live chunk records.
	ErrChunksNotFound = errors.New("no chunks found for upload")

	// ErrChunksIncomplete indicates a merge was requested before every chunk arrived.
	ErrChunksIncomplete = errors.New("chunk set is incomplete")

	// ErrMergeInProgress indicates another caller currently holds the merge for an upload.
	ErrMergeInProgress = errors.New("merge already in progress")

	// ===========================================
	// Id Errors
	// ===========================================

	// ErrClockRegression indicates the system clock moved backwards.
	// No id is minted since doing so could repeat an earlier one.
	ErrClockRegression = errors.New("clock moved backwards")

	// ErrDecode indicates an external id token is empty or malformed.
	ErrDecode = errors.New("malformed id token")

	// ===========================================
	// Error Log Errors
	// ===========================================

	// ErrErrorLogNotFound indicates the requested error log entry does not exist.
	ErrErrorLogNotFound = errors.New("error log not found")
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	KindUnknown    Kind = ""
	KindValidation Kind = "Validation"
	KindIO         Kind = "IO"
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
	KindFatal      Kind = "Fatal"
	KindDecode     Kind = "Decode"
)

// sentinelKinds maps every sentinel to its kind and stable code.
var sentinelKinds = []struct {
	err  error
	kind Kind
	code string
}{
	{ErrValidation, KindValidation, "VALIDATION_FAILED"},
	{ErrInvalidChunkNumber, KindValidation, "INVALID_CHUNK_NUMBER"},
	{ErrSizeMismatch, KindIO, "SIZE_MISMATCH"},
	{ErrStorageIO, KindIO, "STORAGE_IO"},
	{ErrBackendUnsupported, KindFatal, "BACKEND_UNSUPPORTED"},
	{ErrPhysicalFileNotFound, KindNotFound, "FILE_NOT_FOUND"},
	{ErrPhysicalFileExists, KindConflict, "FILE_EXISTS"},
	{ErrChunksNotFound, KindNotFound, "CHUNKS_NOT_FOUND"},
	{ErrChunksIncomplete, KindConflict, "CHUNKS_INCOMPLETE"},
	{ErrMergeInProgress, KindConflict, "MERGE_IN_PROGRESS"},
	{ErrClockRegression, KindFatal, "CLOCK_REGRESSION"},
	{ErrDecode, KindDecode, "DECODE_FAILED"},
	{ErrErrorLogNotFound, KindNotFound, "ERROR_LOG_NOT_FOUND"},
}

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., a real path or identifier).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}

// NewValidationError reports a missing or blank required field.
func NewValidationError(field string) error {
	return &DomainError{
		Err:     ErrValidation,
		Message: field + " is required",
	}
}

// NewIOError reports a failed backend operation on path.
// The result matches both ErrStorageIO and cause.
func NewIOError(op, path string, cause error) error {
	return &DomainError{
		Err:      fmt.Errorf("%w: %w", ErrStorageIO, cause),
		Message:  op,
		Resource: path,
	}
}

// KindOf returns the kind of the first sentinel found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return "INTERNAL_ERROR"
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsRetryable reports whether a later attempt of the same call may succeed.
// Only physical I/O failures qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindIO
}
