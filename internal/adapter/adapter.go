// Package adapter defines the fixed capability contract every commerce
// platform integration satisfies, and the dispatcher that routes a
// capability call to a local adapter or a remote HTTP endpoint.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"order-router/internal/model"
)

// Adapter abstracts platform operations into one method per capability.
// Each platform (Shopify, WooCommerce, Wix, or a remote service) provides
// its own implementation; methods it does not support return
// model.ErrAdapterFunctionNotFound, usually by embedding Unimplemented.
//
// The platform record is passed on every call so one adapter value can
// serve any number of platform rows that point at it.
type Adapter interface {
	// SearchProducts lists channel products, optionally narrowed to one
	// product/variant pair. Used by match lookup for enrichment.
	SearchProducts(ctx context.Context, p *model.Platform, req *SearchProductsRequest) (*SearchProductsResult, error)

	GetProduct(ctx context.Context, p *model.Platform, req *GetProductRequest) (*Product, error)
	UpdateProduct(ctx context.Context, p *model.Platform, req *UpdateProductRequest) (*Product, error)

	// CreatePurchase places one purchase on a channel for a group of cart
	// items. The returned PurchaseID must be non-empty on success.
	CreatePurchase(ctx context.Context, p *model.Platform, req *CreatePurchaseRequest) (*PurchaseResult, error)

	CreateWebhook(ctx context.Context, p *model.Platform, req *CreateWebhookRequest) (*Webhook, error)
	DeleteWebhook(ctx context.Context, p *model.Platform, req *DeleteWebhookRequest) (*DeleteWebhookResult, error)
	GetWebhooks(ctx context.Context, p *model.Platform, req *GetWebhooksRequest) (*WebhookList, error)

	// OAuth returns the platform authorization URL the user is sent to.
	OAuth(ctx context.Context, p *model.Platform, req *OAuthRequest) (*OAuthRedirect, error)

	// OAuthCallback exchanges an authorization code for credentials.
	OAuthCallback(ctx context.Context, p *model.Platform, req *OAuthCallbackRequest) (*OAuthToken, error)

	// CreateOrderWebhookHandler parses a shop's order-created event.
	CreateOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*IncomingOrder, error)

	// CancelOrderWebhookHandler parses a cancellation event. Channels return
	// the purchase id; shops return their external order id.
	CancelOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*CancelEvent, error)

	// AddTracking pushes fulfillment tracking back to the shop.
	AddTracking(ctx context.Context, p *model.Platform, req *AddTrackingRequest) (*AddTrackingResult, error)
}

// SearchProductsRequest narrows a product search on a channel.
type SearchProductsRequest struct {
	Domain      string `json:"domain,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	SearchEntry string `json:"searchEntry,omitempty"`
	ProductID   string `json:"productId,omitempty"`
	VariantID   string `json:"variantId,omitempty"`
	After       string `json:"after,omitempty"`
}

// Product is a channel product in the shape every adapter returns.
type Product struct {
	Image            string          `json:"image,omitempty"`
	Title            string          `json:"title"`
	ProductID        string          `json:"productId"`
	VariantID        string          `json:"variantId"`
	Price            decimal.Decimal `json:"price"`
	AvailableForSale bool            `json:"availableForSale"`
	Inventory        *int            `json:"inventory,omitempty"`
	ProductLink      string          `json:"productLink,omitempty"`
}

// SearchProductsResult is one page of products.
type SearchProductsResult struct {
	Products []Product `json:"products"`
	Next     string    `json:"next,omitempty"`
}

type GetProductRequest struct {
	Domain      string `json:"domain,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId,omitempty"`
}

type UpdateProductRequest struct {
	Domain      string           `json:"domain,omitempty"`
	AccessToken string           `json:"accessToken,omitempty"`
	ProductID   string           `json:"productId"`
	VariantID   string           `json:"variantId,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Inventory   *int             `json:"inventory,omitempty"`
}

// CreatePurchaseRequest carries one channel group of an order.
type CreatePurchaseRequest struct {
	Domain      string           `json:"domain,omitempty"`
	AccessToken string           `json:"accessToken,omitempty"`
	CartItems   []model.CartItem `json:"cartItems"`
	Email       string           `json:"email,omitempty"`
	Address     model.Address    `json:"address"`
	OrderID     string           `json:"orderId"`
}

// PurchaseResult identifies the purchase the channel created.
type PurchaseResult struct {
	PurchaseID string `json:"purchaseId"`
	URL        string `json:"url,omitempty"`
}

type CreateWebhookRequest struct {
	Domain      string `json:"domain,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	Topic       string `json:"topic"`
	Endpoint    string `json:"endpoint"`
}

type DeleteWebhookRequest struct {
	Domain      string `json:"domain,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	WebhookID   string `json:"webhookId"`
}

type GetWebhooksRequest struct {
	Domain      string `json:"domain,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Webhook is a subscription registered on a platform.
type Webhook struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

type DeleteWebhookResult struct {
	Deleted bool `json:"deleted"`
}

type WebhookList struct {
	Webhooks []Webhook `json:"webhooks"`
}

// OAuthRequest asks a platform for its authorization URL.
type OAuthRequest struct {
	Shop        string `json:"shop,omitempty"`
	State       string `json:"state"`
	RedirectURI string `json:"redirectUri"`
	AppKey      string `json:"appKey,omitempty"`
}

type OAuthRedirect struct {
	URL string `json:"url"`
}

// OAuthCallbackRequest is the code exchange input.
type OAuthCallbackRequest struct {
	Code        string `json:"code"`
	Shop        string `json:"shop,omitempty"`
	AppKey      string `json:"appKey,omitempty"`
	AppSecret   string `json:"appSecret,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

// OAuthToken is the credential set returned by a code exchange. Platforms
// answer with either a bare access token string or the structured form.
type OAuthToken struct {
	AccessToken    string     `json:"accessToken"`
	RefreshToken   string     `json:"refreshToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

// UnmarshalJSON accepts "token" as well as {"accessToken": ...}.
func (t *OAuthToken) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = OAuthToken{AccessToken: s}
		return nil
	}

	type structured OAuthToken
	var v struct {
		structured
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding oauth token: %w", err)
	}
	*t = OAuthToken(v.structured)
	if t.AccessToken == "" {
		t.AccessToken = v.Token
	}
	if t.TokenExpiresAt == nil && v.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(v.ExpiresIn) * time.Second).UTC()
		t.TokenExpiresAt = &exp
	}
	return nil
}

// WebhookEventRequest hands a verified webhook to the adapter for parsing.
type WebhookEventRequest struct {
	Event   json.RawMessage   `json:"event"`
	Headers map[string]string `json:"headers"`
}

// IncomingOrder is a shop order in canonical form.
type IncomingOrder struct {
	OrderID       string          `json:"orderId"`
	OrderName     string          `json:"orderName,omitempty"`
	Email         string          `json:"email,omitempty"`
	Address       model.Address   `json:"address"`
	Currency      string          `json:"currency,omitempty"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	SubTotalPrice decimal.Decimal `json:"subTotalPrice"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	TotalTax      decimal.Decimal `json:"totalTax"`
	LineItems     []IncomingLine  `json:"lineItems"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// IncomingLine is one line of an IncomingOrder.
type IncomingLine struct {
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CancelEvent is the parsed result of a cancellation webhook.
type CancelEvent struct {
	PurchaseID string `json:"purchaseId,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
}

type AddTrackingRequest struct {
	Domain          string `json:"domain,omitempty"`
	AccessToken     string `json:"accessToken,omitempty"`
	OrderID         string `json:"orderId"`
	TrackingNumber  string `json:"trackingNumber"`
	TrackingCompany string `json:"trackingCompany,omitempty"`
}

type AddTrackingResult struct {
	FulfillmentID string `json:"fulfillmentId,omitempty"`
}

// Unimplemented answers every capability with ErrAdapterFunctionNotFound.
// Embed it in local adapters and override what the platform supports.
type Unimplemented struct{}

func (Unimplemented) SearchProducts(context.Context, *model.Platform, *SearchProductsRequest) (*SearchProductsResult, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) GetProduct(context.Context, *model.Platform, *GetProductRequest) (*Product, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) UpdateProduct(context.Context, *model.Platform, *UpdateProductRequest) (*Product, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) CreatePurchase(context.Context, *model.Platform, *CreatePurchaseRequest) (*PurchaseResult, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) CreateWebhook(context.Context, *model.Platform, *CreateWebhookRequest) (*Webhook, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) DeleteWebhook(context.Context, *model.Platform, *DeleteWebhookRequest) (*DeleteWebhookResult, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) GetWebhooks(context.Context, *model.Platform, *GetWebhooksRequest) (*WebhookList, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) OAuth(context.Context, *model.Platform, *OAuthRequest) (*OAuthRedirect, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) OAuthCallback(context.Context, *model.Platform, *OAuthCallbackRequest) (*OAuthToken, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) CreateOrderWebhookHandler(context.Context, *model.Platform, *WebhookEventRequest) (*IncomingOrder, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) CancelOrderWebhookHandler(context.Context, *model.Platform, *WebhookEventRequest) (*CancelEvent, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

func (Unimplemented) AddTracking(context.Context, *model.Platform, *AddTrackingRequest) (*AddTrackingResult, error) {
	return nil, model.ErrAdapterFunctionNotFound
}

var _ Adapter = Unimplemented{}
