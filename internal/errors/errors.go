package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors form the closed set of error kinds the engine can surface.
// Callers match on these with the Is* helpers instead of inspecting messages.
var (
	ErrCustomerNotFound = newSentinel(ErrCodeCustomerNotFound, "customer not found")
	ErrProductNotFound  = newSentinel(ErrCodeProductNotFound, "product not found")
	ErrFeatureNotFound  = newSentinel(ErrCodeFeatureNotFound, "feature not found")
	ErrNotFound         = newSentinel(ErrCodeNotFound, "resource not found")
	ErrConflict         = newSentinel(ErrCodeConflict, "conflicting state")
	ErrVersionConflict  = newSentinel(ErrCodeVersionConflict, "version conflict")
	ErrAlreadyExists    = newSentinel(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = newSentinel(ErrCodeValidation, "validation error")
	ErrInvalidOperation = newSentinel(ErrCodeInvalidOperation, "invalid operation")
	ErrIntegration      = newSentinel(ErrCodeIntegration, "payment processor error")
	ErrDatabase         = newSentinel(ErrCodeDatabase, "database error")
	ErrSystem           = newSentinel(ErrCodeSystemError, "system error")

	statusCodeMap = map[error]int{
		ErrCustomerNotFound: http.StatusNotFound,
		ErrProductNotFound:  http.StatusNotFound,
		ErrFeatureNotFound:  http.StatusNotFound,
		ErrNotFound:         http.StatusNotFound,
		ErrConflict:         http.StatusConflict,
		ErrVersionConflict:  http.StatusConflict,
		ErrAlreadyExists:    http.StatusConflict,
		ErrValidation:       http.StatusBadRequest,
		ErrInvalidOperation: http.StatusBadRequest,
		ErrIntegration:      http.StatusBadGateway,
		ErrDatabase:         http.StatusInternalServerError,
		ErrSystem:           http.StatusInternalServerError,
	}
)

const (
	ErrCodeCustomerNotFound = "customer_not_found"
	ErrCodeProductNotFound  = "product_not_found"
	ErrCodeFeatureNotFound  = "feature_not_found"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeVersionConflict  = "version_conflict"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeIntegration      = "integration_error"
	ErrCodeDatabase         = "database_error"
	ErrCodeSystemError      = "system_error"
)

// sentinelError is the marker type carried by every error the engine emits.
type sentinelError struct {
	Code    string
	Message string
}

func (e *sentinelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newSentinel(code, message string) *sentinelError {
	return &sentinelError{Code: code, Message: message}
}

// Is matches two sentinels by code so that marked errors compare by kind.
func (e *sentinelError) Is(target error) bool {
	t, ok := target.(*sentinelError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrFeatureNotFound)
}

// IsConflict reports whether err is any of the conflict kinds.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrAlreadyExists)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsIntegration(err error) bool {
	return errors.Is(err, ErrIntegration)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// HTTPStatusFromErr maps an error kind to the HTTP status the API layer returns.
func HTTPStatusFromErr(err error) int {
	for sentinel, status := range statusCodeMap {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable code of the sentinel err is marked with.
func Code(err error) string {
	var s *sentinelError
	if errors.As(err, &s) {
		return s.Code
	}
	return ErrCodeSystemError
}
