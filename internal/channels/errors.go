package channels

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a channel failure for monitoring and retry
// decisions.
type ErrorCode string

const (
	ErrCodeConnection     ErrorCode = "CONNECTION_ERROR"
	ErrCodeAuthentication ErrorCode = "AUTH_ERROR"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeTimeout        ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConfig         ErrorCode = "CONFIG_ERROR"
)

// Error wraps a channel failure with a code and optional cause, so
// callers can classify and retry without string matching.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same operation might succeed.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeUnavailable, ErrCodeConnection:
		return true
	default:
		return false
	}
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func ErrConnection(message string, err error) *Error {
	return newError(ErrCodeConnection, message, err)
}

func ErrAuthentication(message string, err error) *Error {
	return newError(ErrCodeAuthentication, message, err)
}

func ErrRateLimit(message string, err error) *Error {
	return newError(ErrCodeRateLimit, message, err)
}

func ErrInvalidInput(message string, err error) *Error {
	return newError(ErrCodeInvalidInput, message, err)
}

func ErrTimeout(message string, err error) *Error {
	return newError(ErrCodeTimeout, message, err)
}

func ErrInternal(message string, err error) *Error {
	return newError(ErrCodeInternal, message, err)
}

func ErrUnavailable(message string, err error) *Error {
	return newError(ErrCodeUnavailable, message, err)
}

func ErrConfig(message string, err error) *Error {
	return newError(ErrCodeConfig, message, err)
}

// CodeOf extracts the ErrorCode from err, defaulting to ErrCodeInternal
// for anything that isn't a *Error.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err, if it's a *Error, is worth retrying.
func IsRetryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Retryable()
}
