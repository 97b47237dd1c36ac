package types

import (
	"errors"
	"fmt"
)

// Error codes for transcription failures
const (
	CodeConfig       = "CONFIG_ERROR"
	CodeFormat       = "FORMAT_ERROR"
	CodeFile         = "FILE_ERROR"
	CodeDuration     = "DURATION_ERROR"
	CodeChunk        = "CHUNK_ERROR"
	CodeFileTooLarge = "FILE_TOO_LARGE"
	CodeAPI          = "API_ERROR"
)

// TranscriptionError is a coded error surfaced on job records
type TranscriptionError struct {
	Code    string
	Message string
	Err     error
}

// Error formats the error with its code
func (e *TranscriptionError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// NewError creates a coded transcription error
func NewError(code, message string) *TranscriptionError {
	return &TranscriptionError{Code: code, Message: message}
}

// WrapError creates a coded transcription error wrapping a cause
func WrapError(code string, err error, format string, args ...interface{}) *TranscriptionError {
	return &TranscriptionError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// ErrorCode extracts the code from an error, or "" if it is not coded
func ErrorCode(err error) string {
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsValidationError reports whether the code marks a permanently
// invalid input rather than a transient failure
func IsValidationError(code string) bool {
	switch code {
	case CodeConfig, CodeFormat, CodeFile:
		return true
	default:
		return false
	}
}
