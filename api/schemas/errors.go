package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a run failure in the summary. Only the constants below
// are ever written.
type ErrorCode string

const (
	ErrCodeConfig                  ErrorCode = "CONFIG_ERROR"
	ErrCodeLoginConfirmationFailed ErrorCode = "LOGIN_CONFIRMATION_FAILED"
	ErrCodeNoStoredSession         ErrorCode = "NO_STORED_SESSION"
	ErrCodeManualLoginTimeout      ErrorCode = "MANUAL_LOGIN_TIMEOUT"
	ErrCodeSessionLost             ErrorCode = "SESSION_LOST_DURING_ACTION"
	ErrCodeActionFailed            ErrorCode = "ACTION_FAILED"
	ErrCodeCaptureFailed           ErrorCode = "CAPTURE_FAILED"
	ErrCodeUnexpected              ErrorCode = "UNEXPECTED"
)

// RunError is a classified failure that terminates the run.
type RunError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewRunError builds a RunError wrapping cause, which may be nil.
func NewRunError(code ErrorCode, cause error, format string, args ...any) *RunError {
	return &RunError{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// CodeOf extracts the error code from err, falling back to ErrCodeUnexpected
// for anything that was never classified.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeUnexpected
}

// MessageOf returns the human readable message of a classified error.
func MessageOf(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
