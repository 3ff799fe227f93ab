package adapter

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

// maxRemoteResponse bounds how much of a remote adapter reply is read.
const maxRemoteResponse = 4 << 20

// StatusError reports a non-2xx answer from a remote adapter endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote adapter returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote adapter returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Remote implements Adapter by POSTing each capability call as JSON to the
// URL the platform configures for it. The body is the request's own fields
// plus a "platform" member carrying the platform record.
type Remote struct {
	client *http.Client
}

// NewRemote creates a remote invoker. A nil client uses http.DefaultClient.
func NewRemote(client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{client: client}
}

// IsRemoteEndpoint reports whether a capability target is an HTTP URL
// rather than a local adapter identifier.
func IsRemoteEndpoint(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func (r *Remote) post(ctx context.Context, p *model.Platform, c model.Capability, in, out any) error {
	endpoint := p.Endpoint(c)
	if !IsRemoteEndpoint(endpoint) {
		return model.ErrAdapterFunctionNotFound
	}

	body, err := remoteBody(p, in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// remoteBody flattens in into a JSON object and adds the platform.
func remoteBody(p *model.Platform, in any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("request must encode as an object: %w", err)
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	platform, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding platform: %w", err)
	}
	fields["platform"] = platform
	return json.Marshal(fields)
}

func (r *Remote) SearchProducts(ctx context.Context, p *model.Platform, req *SearchProductsRequest) (*SearchProductsResult, error) {
	var out SearchProductsResult
	if err := r.post(ctx, p, model.CapSearchProducts, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) GetProduct(ctx context.Context, p *model.Platform, req *GetProductRequest) (*Product, error) {
	var out Product
	if err := r.post(ctx, p, model.CapGetProduct, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) UpdateProduct(ctx context.Context, p *model.Platform, req *UpdateProductRequest) (*Product, error) {
	var out Product
	if err := r.post(ctx, p, model.CapUpdateProduct, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) CreatePurchase(ctx context.Context, p *model.Platform, req *CreatePurchaseRequest) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := r.post(ctx, p, model.CapCreatePurchase, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) CreateWebhook(ctx context.Context, p *model.Platform, req *CreateWebhookRequest) (*Webhook, error) {
	var out Webhook
	if err := r.post(ctx, p, model.CapCreateWebhook, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) DeleteWebhook(ctx context.Context, p *model.Platform, req *DeleteWebhookRequest) (*DeleteWebhookResult, error) {
	var out DeleteWebhookResult
	if err := r.post(ctx, p, model.CapDeleteWebhook, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) GetWebhooks(ctx context.Context, p *model.Platform, req *GetWebhooksRequest) (*WebhookList, error) {
	var out WebhookList
	if err := r.post(ctx, p, model.CapGetWebhooks, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) OAuth(ctx context.Context, p *model.Platform, req *OAuthRequest) (*OAuthRedirect, error) {
	var out OAuthRedirect
	if err := r.post(ctx, p, model.CapOAuth, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) OAuthCallback(ctx context.Context, p *model.Platform, req *OAuthCallbackRequest) (*OAuthToken, error) {
	var out OAuthToken
	if err := r.post(ctx, p, model.CapOAuthCallback, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) CreateOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*IncomingOrder, error) {
	var out IncomingOrder
	if err := r.post(ctx, p, model.CapCreateOrderWebhookHandler, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) CancelOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*CancelEvent, error) {
	var out CancelEvent
	if err := r.post(ctx, p, model.CapCancelOrderWebhookHandler, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) AddTracking(ctx context.Context, p *model.Platform, req *AddTrackingRequest) (*AddTrackingResult, error) {
	var out AddTrackingResult
	if err := r.post(ctx, p, model.CapAddTracking, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var _ Adapter = (*Remote)(nil)
