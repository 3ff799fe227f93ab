package adapter

import (
	"context"

	"order-router/internal/model"
)

// Mock implements Adapter for testing.
// Each method can be configured via function fields; unset fields answer
// ErrAdapterFunctionNotFound like an adapter lacking the capability.
type Mock struct {
	SearchProductsFunc            func(ctx context.Context, p *model.Platform, req *SearchProductsRequest) (*SearchProductsResult, error)
	GetProductFunc                func(ctx context.Context, p *model.Platform, req *GetProductRequest) (*Product, error)
	UpdateProductFunc             func(ctx context.Context, p *model.Platform, req *UpdateProductRequest) (*Product, error)
	CreatePurchaseFunc            func(ctx context.Context, p *model.Platform, req *CreatePurchaseRequest) (*PurchaseResult, error)
	CreateWebhookFunc             func(ctx context.Context, p *model.Platform, req *CreateWebhookRequest) (*Webhook, error)
	DeleteWebhookFunc             func(ctx context.Context, p *model.Platform, req *DeleteWebhookRequest) (*DeleteWebhookResult, error)
	GetWebhooksFunc               func(ctx context.Context, p *model.Platform, req *GetWebhooksRequest) (*WebhookList, error)
	OAuthFunc                     func(ctx context.Context, p *model.Platform, req *OAuthRequest) (*OAuthRedirect, error)
	OAuthCallbackFunc             func(ctx context.Context, p *model.Platform, req *OAuthCallbackRequest) (*OAuthToken, error)
	CreateOrderWebhookHandlerFunc func(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*IncomingOrder, error)
	CancelOrderWebhookHandlerFunc func(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*CancelEvent, error)
	AddTrackingFunc               func(ctx context.Context, p *model.Platform, req *AddTrackingRequest) (*AddTrackingResult, error)
}

func (m *Mock) SearchProducts(ctx context.Context, p *model.Platform, req *SearchProductsRequest) (*SearchProductsResult, error) {
	if m.SearchProductsFunc != nil {
		return m.SearchProductsFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) GetProduct(ctx context.Context, p *model.Platform, req *GetProductRequest) (*Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) UpdateProduct(ctx context.Context, p *model.Platform, req *UpdateProductRequest) (*Product, error) {
	if m.UpdateProductFunc != nil {
		return m.UpdateProductFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

// CreatePurchase calls the configured CreatePurchaseFunc or returns an error.
func (m *Mock) CreatePurchase(ctx context.Context, p *model.Platform, req *CreatePurchaseRequest) (*PurchaseResult, error) {
	if m.CreatePurchaseFunc != nil {
		return m.CreatePurchaseFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) CreateWebhook(ctx context.Context, p *model.Platform, req *CreateWebhookRequest) (*Webhook, error) {
	if m.CreateWebhookFunc != nil {
		return m.CreateWebhookFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) DeleteWebhook(ctx context.Context, p *model.Platform, req *DeleteWebhookRequest) (*DeleteWebhookResult, error) {
	if m.DeleteWebhookFunc != nil {
		return m.DeleteWebhookFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) GetWebhooks(ctx context.Context, p *model.Platform, req *GetWebhooksRequest) (*WebhookList, error) {
	if m.GetWebhooksFunc != nil {
		return m.GetWebhooksFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) OAuth(ctx context.Context, p *model.Platform, req *OAuthRequest) (*OAuthRedirect, error) {
	if m.OAuthFunc != nil {
		return m.OAuthFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

// OAuthCallback calls the configured OAuthCallbackFunc or returns an error.
func (m *Mock) OAuthCallback(ctx context.Context, p *model.Platform, req *OAuthCallbackRequest) (*OAuthToken, error) {
	if m.OAuthCallbackFunc != nil {
		return m.OAuthCallbackFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) CreateOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*IncomingOrder, error) {
	if m.CreateOrderWebhookHandlerFunc != nil {
		return m.CreateOrderWebhookHandlerFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) CancelOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*CancelEvent, error) {
	if m.CancelOrderWebhookHandlerFunc != nil {
		return m.CancelOrderWebhookHandlerFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

func (m *Mock) AddTracking(ctx context.Context, p *model.Platform, req *AddTrackingRequest) (*AddTrackingResult, error) {
	if m.AddTrackingFunc != nil {
		return m.AddTrackingFunc(ctx, p, req)
	}
	return nil, model.ErrAdapterFunctionNotFound
}

// Verify Mock implements Adapter interface at compile time.
var _ Adapter = (*Mock)(nil)
