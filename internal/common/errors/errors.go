package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable rejection reason carried to clients on the
// operation_rejected event and mapped to an HTTP status on the read path.
type Code string

const (
	CodeLocked        Code = "locked"
	CodeMuted         Code = "muted"
	CodeNotFound      Code = "not-found"
	CodeExpiredWindow Code = "expired-window"
	CodeForbidden     Code = "forbidden"
	CodeRateLimited   Code = "rate-limited"
	CodeInvalid       Code = "invalid"
	CodeUnauthorized  Code = "unauthorized"
	CodeInternal      Code = "internal"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRejected     = errors.New("operation rejected")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code Code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Err: ErrNotFound}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Err: ErrUnauthorized}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Err: ErrForbidden}
}

func Locked(message string) *AppError {
	return &AppError{Code: CodeLocked, Message: message, Err: ErrRejected}
}

func Muted(message string) *AppError {
	return &AppError{Code: CodeMuted, Message: message, Err: ErrRejected}
}

func ExpiredWindow(message string) *AppError {
	return &AppError{Code: CodeExpiredWindow, Message: message, Err: ErrRejected}
}

func RateLimited(message string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: message, Err: ErrRejected}
}

func Invalid(message string) *AppError {
	return &AppError{Code: CodeInvalid, Message: message, Err: ErrRejected}
}

func Internal(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf extracts the rejection code, defaulting to internal for plain errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code == CodeNotFound {
			return true
		}
		return errors.Is(appErr.Err, ErrNotFound)
	}

	return errors.Is(err, ErrNotFound)
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeLocked, CodeMuted, CodeExpiredWindow:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
