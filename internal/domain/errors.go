package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier returned to clients
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
	CodeExpired          ErrorCode = "EXPIRED"
	CodeFull             ErrorCode = "DEAL_FULL"
	CodeDuplicateJoin    ErrorCode = "DUPLICATE_JOIN"
	CodeCategoryMismatch ErrorCode = "CATEGORY_MISMATCH"
	CodeOutOfStock       ErrorCode = "OUT_OF_STOCK"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeServerError      ErrorCode = "SERVER_ERROR"
)

// HTTPStatus maps an error code onto the status used by the REST surface
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeExpired, CodeFull, CodeDuplicateJoin,
		CodeCategoryMismatch, CodeOutOfStock, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a business error with a stable code. Two errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a business error
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrNotFound         = NewError(CodeNotFound, "resource not found")
	ErrDealNotFound     = NewError(CodeNotFound, "deal not found")
	ErrProductNotFound  = NewError(CodeNotFound, "product not found")
	ErrCategoryNotFound = NewError(CodeNotFound, "category not found")
	ErrUserNotFound     = NewError(CodeNotFound, "user not found")
	ErrInvalidState     = NewError(CodeInvalidState, "deal is not active")
	ErrExpired          = NewError(CodeExpired, "deal has expired")
	ErrFull             = NewError(CodeFull, "deal has reached its maximum number of participants")
	ErrDuplicateJoin    = NewError(CodeDuplicateJoin, "user has already joined this deal")
	ErrCategoryMismatch = NewError(CodeCategoryMismatch, "product category does not match deal category")
	ErrOutOfStock       = NewError(CodeOutOfStock, "product is out of stock")
	ErrUnauthorized     = NewError(CodeUnauthorized, "authentication required")
	ErrForbidden        = NewError(CodeForbidden, "insufficient permissions")
	ErrValidation       = NewError(CodeValidation, "validation failed")
	ErrConflict         = NewError(CodeConflict, "resource already exists")
)

// NewInvalidStateError reports a deal that is not in the status an operation needs
func NewInvalidStateError(status DealStatus) *Error {
	return NewError(CodeInvalidState, fmt.Sprintf("deal is not active (current status: %s)", status))
}

// NewValidationError reports malformed input
func NewValidationError(format string, args ...interface{}) *Error {
	return NewError(CodeValidation, fmt.Sprintf(format, args...))
}

// CodeOf extracts the error code, defaulting to CodeServerError
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeServerError
}
