package domain

import "errors"

// ErrorCode is the taxonomy surfaced at the HTTP boundary and in logs.
type ErrorCode string

const (
	ErrValidation    ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrForbidden     ErrorCode = "FORBIDDEN"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrBadSignature  ErrorCode = "BAD_SIGNATURE"
	ErrBadDigest     ErrorCode = "BAD_DIGEST"
	ErrStale         ErrorCode = "STALE"
	ErrUnknownKey    ErrorCode = "UNKNOWN_KEY"
	ErrAuthMismatch  ErrorCode = "AUTH_MISMATCH"
	ErrRemoteFailure ErrorCode = "REMOTE_FAILURE"
	ErrInternal      ErrorCode = "INTERNAL"
)

// CodedError carries an ErrorCode and, for validation failures, the
// offending field path.
type CodedError struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *CodedError) Error() string {
	if e.Field != "" {
		return string(e.Code) + " " + e.Field + ": " + e.Message
	}
	return string(e.Code) + ": " + e.Message
}

// NewCodedError builds a CodedError without a field path.
func NewCodedError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// NewValidationError builds a VALIDATION_ERROR for one field.
func NewValidationError(field, message string) *CodedError {
	return &CodedError{Code: ErrValidation, Field: field, Message: message}
}

// CodeOf extracts the ErrorCode from err, defaulting to INTERNAL for
// errors outside the taxonomy.
func CodeOf(err error) ErrorCode {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrInternal
}
