// Package shopify implements the local adapter for Shopify shops: order
// webhooks in, OAuth installs, webhook subscriptions and fulfillment
// tracking out through the Admin GraphQL API.
package shopify

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
	// apiVersion is the Admin API release every call is pinned to.
	apiVersion = "2025-01"

	accessTokenHeader = "X-Shopify-Access-Token"
	userAgent         = "order-router/1.0"

	maxResponseBody = 4 << 20
)

// shopURL turns a shop domain into a base URL. Bare domains get https;
// values that already carry a scheme are used as given.
func shopURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// userError is the shape of mutation-level validation failures.
type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func userErrorsToErr(errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
		if len(e.Field) > 0 {
			msgs[i] = strings.Join(e.Field, ".") + ": " + e.Message
		}
	}
	return model.NewValidationError("request", strings.Join(msgs, "; "))
}

// graphql runs one Admin API query and decodes its data member into out.
func (a *Adapter) graphql(ctx context.Context, domain, token, query string, vars map[string]any, out any) error {
	if domain == "" || token == "" {
		return model.NewValidationError("connection", "domain and access token are required")
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/graphql.json", shopURL(domain), apiVersion)

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}

	respBody, err := a.do(ctx, http.MethodPost, endpoint, token, body)
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("parsing graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return model.NewUpstreamError("Shopify", fmt.Errorf("graphql: %s", strings.Join(msgs, "; ")))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decoding graphql data: %w", err)
	}
	return nil
}

// do sends a JSON request and returns the body of a 2xx answer.
func (a *Adapter) do(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set(accessTokenHeader, token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// parseErrorResponse maps a Shopify error status onto the API error set.
func parseErrorResponse(statusCode int, body []byte) error {
	var shopErr struct {
		Errors           json.RawMessage `json:"errors"`
		ErrorDescription string          `json:"error_description"`
	}
	_ = json.Unmarshal(body, &shopErr)
	detail := shopErr.ErrorDescription
	if detail == "" && len(shopErr.Errors) > 0 {
		detail = strings.Trim(string(shopErr.Errors), `"`)
	}

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("Shopify resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("Shopify authentication failed")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if detail == "" {
			detail = "invalid request"
		}
		return model.NewValidationError("request", detail)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("Shopify")
	default:
		return model.NewUpstreamError("Shopify", fmt.Errorf("status %d: %s", statusCode, detail))
	}
}

// gid builds an Admin API global id from a numeric id. Ids that already
// are global ids pass through.
func gid(kind, id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/" + kind + "/" + id
}

// legacyID strips a global id down to its trailing numeric id.
func legacyID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
