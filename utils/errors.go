package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the wire-level error classification (see RespondAppError).
type ErrorKind string

const (
	KindValidation                ErrorKind = "validation"
	KindInsufficientStock         ErrorKind = "insufficient_stock"
	KindTotalMismatch             ErrorKind = "total_mismatch"
	KindPaymentRequired           ErrorKind = "payment_required"
	KindPaymentVerificationFailed ErrorKind = "payment_verification_failed"
	KindPaymentExpired            ErrorKind = "payment_expired"
	KindDuplicate                 ErrorKind = "duplicate"
	KindAuth                      ErrorKind = "auth"
	KindConflict                  ErrorKind = "conflict"
	KindTransient                 ErrorKind = "transient"
)

// AppError pairs a classification with a human-readable message.
type AppError struct {
	Kind    ErrorKind
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

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func WrapAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from an error chain.
// Unclassified errors are reported as transient so clients retry with backoff.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransient
}

// StatusForKind maps the wire taxonomy onto HTTP status codes.
func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindValidation, KindTotalMismatch:
		return http.StatusBadRequest
	case KindInsufficientStock:
		return http.StatusConflict
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindPaymentVerificationFailed:
		return http.StatusBadRequest
	case KindPaymentExpired:
		return http.StatusGone
	case KindDuplicate:
		return http.StatusOK
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
