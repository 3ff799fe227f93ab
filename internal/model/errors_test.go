package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("order")

	if err.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want %q", err.Code, "NOT_FOUND")
	}
	if err.Message != "order not found" {
		t.Errorf("Message = %q, want %q", err.Message, "order not found")
	}
	if err.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 404)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("error should wrap ErrNotFound sentinel")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("orderIds", "at least one order required")

	if err.Message != "invalid orderIds: at least one order required" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 400)
	}
	if !errors.Is(err, ErrInvalidRequest) {
		t.Error("error should wrap ErrInvalidRequest sentinel")
	}
}

func TestNewUpstreamError(t *testing.T) {
	err := NewUpstreamError("WooCommerce", errors.New("connection refused"))

	if err.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 502)
	}
	if !errors.Is(err, ErrUpstreamError) {
		t.Error("error should wrap ErrUpstreamError sentinel")
	}
	if !strings.Contains(err.Err.Error(), "connection refused") {
		t.Errorf("wrapped error = %v, want cause preserved", err.Err)
	}
}

func TestAdapterExecutionError(t *testing.T) {
	cause := errors.New("boom")
	err := &AdapterExecutionError{
		PlatformID:   "plat-1",
		PlatformName: "Shopify",
		Capability:   CapCreatePurchase,
		Cause:        cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	want := `adapter createPurchase on platform "Shopify" failed: boom`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("placing: %w", err)
	var execErr *AdapterExecutionError
	if !errors.As(wrapped, &execErr) {
		t.Fatal("errors.As should find *AdapterExecutionError")
	}
	if execErr.Capability != CapCreatePurchase {
		t.Errorf("Capability = %s", execErr.Capability)
	}
}

func TestPartialPlacementFailureUnwrap(t *testing.T) {
	cause := &AdapterExecutionError{Capability: CapCreatePurchase, Cause: errors.New("out of stock")}
	err := &PartialPlacementFailure{OrderID: "o1", ChannelID: "c1", CartItemIDs: []string{"a", "b"}, Cause: cause}

	var execErr *AdapterExecutionError
	if !errors.As(err, &execErr) {
		t.Error("errors.As should reach the adapter error")
	}
	if !strings.Contains(err.Error(), "placing 2 cart items") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"platform not found", fmt.Errorf("loading: %w", ErrPlatformNotFound), http.StatusNotFound, "PLATFORM_NOT_FOUND"},
		{"no match", ErrNoMatchFound, http.StatusNotFound, "NO_MATCH_FOUND"},
		{"record not found", fmt.Errorf("order o1: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"bad signature", ErrInvalidWebhookSignature, http.StatusUnauthorized, "INVALID_WEBHOOK_SIGNATURE"},
		{"bad state", ErrInvalidStateParameter, http.StatusBadRequest, "INVALID_STATE_PARAMETER"},
		{"state signature", ErrInvalidStateSignature, http.StatusBadRequest, "INVALID_STATE_SIGNATURE"},
		{"expired", ErrStateExpired, http.StatusBadRequest, "STATE_EXPIRED"},
		{"duplicate", fmt.Errorf("platform p1: %w", ErrConflict), http.StatusConflict, "CONFLICT"},
		{
			"missing adapter function",
			&AdapterExecutionError{Capability: CapOAuth, Cause: ErrAdapterFunctionNotFound},
			http.StatusNotImplemented, "ADAPTER_FUNCTION_NOT_FOUND",
		},
		{
			"adapter failure",
			&AdapterExecutionError{Capability: CapOAuthCallback, Cause: errors.New("bad code")},
			http.StatusBadGateway, "ADAPTER_EXECUTION_ERROR",
		},
		{"existing api error", NewValidationError("code", "required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAPIError(tt.err)
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
		})
	}

	if ToAPIError(nil) != nil {
		t.Error("ToAPIError(nil) should be nil")
	}
}

// TestErrorsIs verifies that errors.Is() works correctly with all sentinel errors.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		sentinel error
	}{
		{"NotFound", NewNotFoundError("x"), ErrNotFound},
		{"Validation", NewValidationError("x", "y"), ErrInvalidRequest},
		{"Unauthorized", NewUnauthorizedError("x"), ErrUnauthorized},
		{"Upstream", NewUpstreamError("x", nil), ErrUpstreamError},
		{"RateLimit", NewRateLimitError("x"), ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}
