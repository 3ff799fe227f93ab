package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"order-router/internal/model"
)

// =============================================================================
// REST API AUTHENTICATION
// =============================================================================
//
// Channels talk to the WooCommerce REST API v3 with a consumer key pair.
// The pair is stored on the channel as a single access token of the form
//
//	ck_xxx:cs_xxx
//
// and sent as HTTP Basic credentials. WooCommerce only accepts Basic auth
// over HTTPS; plain HTTP stores need the query-string form, which is not
// supported here.
// =============================================================================

// restAPIPath is the base path for REST API v3 endpoints.
const restAPIPath = "/wp-json/wc/v3"

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "order-router/1.0"

const maxResponseBody = 4 << 20

// credentials splits a stored "key:secret" token.
func credentials(token string) (key, secret string, err error) {
	key, secret, ok := strings.Cut(token, ":")
	if !ok || key == "" || secret == "" {
		return "", "", model.NewUnauthorizedError("WooCommerce credentials must be consumer_key:consumer_secret")
	}
	return key, secret, nil
}

// storeURL normalizes a channel domain into the store base URL.
func storeURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

// response is a decoded 2xx answer with the paging headers WooCommerce sets.
type response struct {
	body       []byte
	totalPages int
}

// do sends one REST call. in is JSON-encoded when non-nil; the answer is
// decoded into out when non-nil.
func (a *Adapter) do(ctx context.Context, method, domain, token, path string, query url.Values, in, out any) (*response, error) {
	if domain == "" {
		return nil, model.NewValidationError("domain", "is required")
	}
	key, secret, err := credentials(token)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := storeURL(domain) + restAPIPath + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setRESTHeaders(req)
	req.SetBasicAuth(key, secret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	pages, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
	return &response{body: respBody, totalPages: pages}, nil
}

func setRESTHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// parseErrorResponse converts WooCommerce error to APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	_ = json.Unmarshal(body, &wcErr)

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("WooCommerce resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case http.StatusBadRequest:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("WooCommerce")
	default:
		return model.NewUpstreamError("WooCommerce",
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}
