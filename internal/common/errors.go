package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError reports invalid caller input. Fully recoverable by the caller.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// NotFoundError reports a missing order, address, or coupon.
func NotFoundError(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound}
}

// PaymentSecurityError reports a signature or amount mismatch on a payment
// confirmation. The associated attempt is marked rather than silently dropped.
func PaymentSecurityError(message string, err error) *AppError {
	return &AppError{Code: "PAYMENT_SECURITY", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

// GatewayError reports an upstream payment-gateway failure or timeout.
func GatewayError(message string, err error) *AppError {
	return &AppError{Code: "GATEWAY_ERROR", Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// InventoryConflictError reports a stock race lost after payment. The order
// needs manual operator intervention; this is alert-worthy, not retryable.
func InventoryConflictError(message string, err error) *AppError {
	return &AppError{Code: "INVENTORY_CONFLICT", Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WriteError renders err using the canonical error shape, mapping AppError
// codes to their HTTP status and everything else to an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
