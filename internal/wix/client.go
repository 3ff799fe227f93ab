package wix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"order-router/internal/model"
)

const (
	// wixBaseURL is the base URL for Wix APIs.
	wixBaseURL = "https://www.wixapis.com"

	// wixInstallURL is where site owners approve an app install.
	wixInstallURL = "https://www.wix.com/installer/install"

	pathOAuthAccess    = "/oauth/access"
	pathProductsQuery  = "/stores/v1/products/query"
	pathProducts       = "/stores/v1/products/"
	pathCheckouts      = "/ecom/v1/checkouts"
	pathCreateOrderFmt = "/ecom/v1/checkouts/%s/create-order"

	userAgent = "order-router/1.0"

	maxResponseBody = 4 << 20
)

// newRequest creates an HTTP request against the Wix API. accessToken is
// sent as a Bearer token when set.
func (a *Adapter) newRequest(ctx context.Context, method, path string, body any, accessToken string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(accessToken, "Bearer "))
	}
	return req, nil
}

// do executes the request and decodes the response.
func (a *Adapter) do(req *http.Request, result any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("Wix", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// call builds and runs one authenticated request.
func (a *Adapter) call(ctx context.Context, method, path string, body any, accessToken string, result any) error {
	if accessToken == "" {
		return model.NewUnauthorizedError("Wix access token is missing")
	}
	req, err := a.newRequest(ctx, method, path, body, accessToken)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return a.do(req, result)
}

// parseError converts Wix API errors to model.APIError.
func parseError(statusCode int, body []byte) error {
	var wixErr WixErrorResponse
	_ = json.Unmarshal(body, &wixErr)

	msg := wixErr.Message
	if wixErr.Details != nil && wixErr.Details.ApplicationError != nil {
		if d := wixErr.Details.ApplicationError.Description; d != "" {
			msg = d
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return model.NewUnauthorizedError("Wix authentication failed")
	case http.StatusForbidden:
		return model.NewUnauthorizedError("Wix access denied")
	case http.StatusNotFound:
		return model.NewNotFoundError("Wix resource")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("Wix")
	case http.StatusBadRequest:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError("Wix", fmt.Errorf("status %d: %s", statusCode, msg))
	}
}
