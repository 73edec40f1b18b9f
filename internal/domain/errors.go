package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError so callers can branch without matching messages.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindInvalidState ErrorKind = "invalid_state"
	KindGateway      ErrorKind = "gateway"
	KindUnauthorized ErrorKind = "unauthorized"
	KindTransaction  ErrorKind = "transaction"
	KindBadRequest   ErrorKind = "bad_request"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int       `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
	Err     error     `json:"-"`
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

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: KindNotFound, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindForbidden, Message: msg}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Kind: KindConflict, Message: msg}
}

func ErrInvalidState(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindInvalidState, Message: msg}
}

// ErrGateway reports a failed call to the payment gateway.
func ErrGateway(msg string, err error) *AppError {
	return &AppError{Code: http.StatusBadGateway, Kind: KindGateway, Message: msg, Err: err}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Kind: KindUnauthorized, Message: msg}
}

// ErrTransaction reports an aborted storage transaction. Nothing inside it was applied.
func ErrTransaction(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Kind: KindTransaction, Message: msg, Err: err}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindBadRequest, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Kind: KindValidation, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Kind: KindInternal, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
