// Package errors defines the categorized error taxonomy used across the
// analysis pipeline. Three categories drive control flow: inconclusive
// (a data source did not answer in time or returned nothing usable — always
// triggers the next fallback, never fatal), not_found (an entity provably
// does not exist for the given key), and invalid_input (malformed address or
// out-of-range value — fatal to the single item, not the batch).
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/coinscan/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryInconclusive represents a data source that did not produce a usable answer
	CategoryInconclusive ErrorCategory = "inconclusive"
	// CategoryNotFound represents an entity that provably does not exist
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryInvalidInput represents malformed caller input
	CategoryInvalidInput ErrorCategory = "invalid_input"
	// CategoryProvider represents an upstream provider failure
	CategoryProvider ErrorCategory = "provider"
	// CategorySystem represents internal failures
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInconclusiveError creates an inconclusive error for a data source
func NewInconclusiveError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInconclusive,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "INCONCLUSIVE",
		Message:    fmt.Sprintf("data source gave no usable answer: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, key string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, key),
		Details: map[string]interface{}{
			"resource": resource,
			"key":      key,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvalidInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvalidInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewProviderError creates a data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// IsInconclusive reports whether err resolves to the inconclusive category.
// Inconclusive answers feed the fallback chain and must never abort a batch.
func IsInconclusive(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryInconclusive
}

// IsNotFound reports whether err resolves to the not_found category
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}

// IsInvalidInput reports whether err resolves to the invalid_input category
func IsInvalidInput(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryInvalidInput
}

// IsRetryable determines if an error is worth retrying against the same source
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryInconclusive:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
