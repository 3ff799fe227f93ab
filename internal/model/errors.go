package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
	ErrConflict       = errors.New("conflict")

	ErrPlatformNotFound        = errors.New("platform not found")
	ErrAdapterFunctionNotFound = errors.New("adapter function not found")
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	ErrInvalidStateParameter   = errors.New("invalid state parameter")
	ErrInvalidStateSignature   = errors.New("invalid state signature")
	ErrStateExpired            = errors.New("state expired")
	ErrNoMatchFound            = errors.New("no match found")
)

// AdapterExecutionError tags an adapter failure with where it happened.
// The dispatcher wraps every adapter error in one; the cause stays
// reachable through errors.Is and errors.As.
type AdapterExecutionError struct {
	PlatformID   string
	PlatformName string
	Capability   Capability
	Cause        error
}

func (e *AdapterExecutionError) Error() string {
	name := e.PlatformName
	if name == "" {
		name = e.PlatformID
	}
	return fmt.Sprintf("adapter %s on platform %q failed: %v", e.Capability, name, e.Cause)
}

func (e *AdapterExecutionError) Unwrap() error {
	return e.Cause
}

// PartialPlacementFailure records that one channel group of an order could
// not be placed. It never aborts sibling groups or sibling orders.
type PartialPlacementFailure struct {
	OrderID     string
	ChannelID   string
	CartItemIDs []string
	Cause       error
}

func (e *PartialPlacementFailure) Error() string {
	return fmt.Sprintf("placing %d cart items for order %s on channel %s: %v",
		len(e.CartItemIDs), e.OrderID, e.ChannelID, e.Cause)
}

func (e *PartialPlacementFailure) Unwrap() error {
	return e.Cause
}

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for platform failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToAPIError maps any error onto the HTTP error taxonomy. An APIError
// already in the chain wins; otherwise the router's sentinels decide.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrPlatformNotFound):
		return &APIError{Code: "PLATFORM_NOT_FOUND", Message: "platform not found", StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, ErrNoMatchFound):
		return &APIError{Code: "NO_MATCH_FOUND", Message: "no match found for the given items", StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: "resource not found", StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, ErrInvalidWebhookSignature):
		return &APIError{Code: "INVALID_WEBHOOK_SIGNATURE", Message: "webhook signature verification failed", StatusCode: http.StatusUnauthorized, Err: err}
	case errors.Is(err, ErrInvalidStateParameter):
		return &APIError{Code: "INVALID_STATE_PARAMETER", Message: "state parameter could not be decoded", StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, ErrInvalidStateSignature):
		return &APIError{Code: "INVALID_STATE_SIGNATURE", Message: "state signature mismatch", StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, ErrStateExpired):
		return &APIError{Code: "STATE_EXPIRED", Message: "state parameter has expired", StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, ErrAdapterFunctionNotFound):
		return &APIError{Code: "ADAPTER_FUNCTION_NOT_FOUND", Message: "platform does not support this operation", StatusCode: http.StatusNotImplemented, Err: err}
	case errors.Is(err, ErrConflict):
		return &APIError{Code: "CONFLICT", Message: "resource already exists", StatusCode: http.StatusConflict, Err: err}
	case errors.Is(err, ErrInvalidRequest):
		return &APIError{Code: "VALIDATION_ERROR", Message: "invalid request", StatusCode: http.StatusBadRequest, Err: err}
	}

	var execErr *AdapterExecutionError
	if errors.As(err, &execErr) {
		return &APIError{
			Code:       "ADAPTER_EXECUTION_ERROR",
			Message:    fmt.Sprintf("%s failed on the platform", execErr.Capability),
			StatusCode: http.StatusBadGateway,
			Err:        err,
		}
	}

	return NewInternalError(err)
}
