package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// ID is the identifier platform rows use to route capabilities here.
const ID = "shopify"

// DefaultScopes are requested on install unless overridden.
var DefaultScopes = []string{
	"read_orders",
	"read_products",
	"write_merchant_managed_fulfillment_orders",
	"write_fulfillments",
}

const searchPageSize = 25

// Adapter serves the shop side of the contract for Shopify stores.
type Adapter struct {
	adapter.Unimplemented
	httpClient *http.Client
	scopes     []string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithScopes replaces the OAuth scopes requested on install.
func WithScopes(scopes ...string) Option {
	return func(a *Adapter) { a.scopes = scopes }
}

// New creates a Shopify adapter. A nil client uses http.DefaultClient.
func New(httpClient *http.Client, opts ...Option) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	a := &Adapter{httpClient: httpClient, scopes: DefaultScopes}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

// OAuth returns the install URL on the merchant's shop.
func (a *Adapter) OAuth(_ context.Context, p *model.Platform, req *adapter.OAuthRequest) (*adapter.OAuthRedirect, error) {
	if req.Shop == "" {
		return nil, model.NewValidationError("shop", "is required for Shopify installs")
	}
	clientID := req.AppKey
	if clientID == "" {
		clientID = p.AppKey
	}
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("scope", strings.Join(a.scopes, ","))
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("state", req.State)
	return &adapter.OAuthRedirect{URL: shopURL(req.Shop) + "/admin/oauth/authorize?" + q.Encode()}, nil
}

// OAuthCallback exchanges the install code for an offline access token.
// Offline tokens do not expire, so no refresh data is returned.
func (a *Adapter) OAuthCallback(ctx context.Context, p *model.Platform, req *adapter.OAuthCallbackRequest) (*adapter.OAuthToken, error) {
	if req.Shop == "" {
		return nil, model.NewValidationError("shop", "is required for Shopify installs")
	}
	body, err := json.Marshal(map[string]string{
		"client_id":     firstNonEmpty(req.AppKey, p.AppKey),
		"client_secret": firstNonEmpty(req.AppSecret, p.AppSecret),
		"code":          req.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling token request: %w", err)
	}

	respBody, err := a.do(ctx, http.MethodPost, shopURL(req.Shop)+"/admin/oauth/access_token", "", body)
	if err != nil {
		return nil, err
	}
	var tok accessTokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, model.NewUpstreamError("Shopify", fmt.Errorf("empty access token"))
	}
	return &adapter.OAuthToken{AccessToken: tok.AccessToken}, nil
}

// CreateOrderWebhookHandler converts an orders/create body.
func (a *Adapter) CreateOrderWebhookHandler(_ context.Context, _ *model.Platform, req *adapter.WebhookEventRequest) (*adapter.IncomingOrder, error) {
	var o orderPayload
	if err := json.Unmarshal(req.Event, &o); err != nil {
		return nil, model.NewValidationError("event", "not a Shopify order: "+err.Error())
	}
	if o.ID == 0 {
		return nil, model.NewValidationError("event", "order id is missing")
	}
	return toIncomingOrder(&o, req.Event), nil
}

// CancelOrderWebhookHandler reads the order id of an orders/cancelled body.
func (a *Adapter) CancelOrderWebhookHandler(_ context.Context, _ *model.Platform, req *adapter.WebhookEventRequest) (*adapter.CancelEvent, error) {
	var o orderPayload
	if err := json.Unmarshal(req.Event, &o); err != nil {
		return nil, model.NewValidationError("event", "not a Shopify order: "+err.Error())
	}
	if o.ID == 0 {
		return nil, model.NewValidationError("event", "order id is missing")
	}
	return &adapter.CancelEvent{OrderID: strconv.FormatInt(o.ID, 10)}, nil
}

// AddTracking fulfills every open fulfillment order of the order with the
// given tracking number.
func (a *Adapter) AddTracking(ctx context.Context, _ *model.Platform, req *adapter.AddTrackingRequest) (*adapter.AddTrackingResult, error) {
	if req.OrderID == "" || req.TrackingNumber == "" {
		return nil, model.NewValidationError("tracking", "order id and tracking number are required")
	}

	var fo fulfillmentOrdersData
	err := a.graphql(ctx, req.Domain, req.AccessToken, fulfillmentOrdersQuery,
		map[string]any{"id": gid("Order", req.OrderID)}, &fo)
	if err != nil {
		return nil, err
	}
	if fo.Order == nil {
		return nil, model.NewNotFoundError("Shopify order " + req.OrderID)
	}

	var open []map[string]any
	for _, n := range fo.Order.FulfillmentOrders.Nodes {
		if n.Status == "OPEN" || n.Status == "IN_PROGRESS" {
			open = append(open, map[string]any{"fulfillmentOrderId": n.ID})
		}
	}
	if len(open) == 0 {
		return nil, model.NewValidationError("order", "no open fulfillment orders")
	}

	tracking := map[string]any{"number": req.TrackingNumber}
	if req.TrackingCompany != "" {
		tracking["company"] = req.TrackingCompany
	}
	var created fulfillmentCreateData
	err = a.graphql(ctx, req.Domain, req.AccessToken, fulfillmentCreateMutation, map[string]any{
		"fulfillment": map[string]any{
			"lineItemsByFulfillmentOrder": open,
			"trackingInfo":                tracking,
			"notifyCustomer":              true,
		},
	}, &created)
	if err != nil {
		return nil, err
	}
	if err := userErrorsToErr(created.FulfillmentCreate.UserErrors); err != nil {
		return nil, err
	}
	res := &adapter.AddTrackingResult{}
	if f := created.FulfillmentCreate.Fulfillment; f != nil {
		res.FulfillmentID = legacyID(f.ID)
	}
	return res, nil
}

// CreateWebhook subscribes endpoint to topic. Topics may be given in the
// REST form ("orders/create") or the GraphQL enum form.
func (a *Adapter) CreateWebhook(ctx context.Context, _ *model.Platform, req *adapter.CreateWebhookRequest) (*adapter.Webhook, error) {
	if req.Topic == "" || req.Endpoint == "" {
		return nil, model.NewValidationError("webhook", "topic and endpoint are required")
	}
	var data webhookCreateData
	err := a.graphql(ctx, req.Domain, req.AccessToken, webhookSubscriptionCreateMutation, map[string]any{
		"topic": topicEnum(req.Topic),
		"webhookSubscription": map[string]any{
			"callbackUrl": req.Endpoint,
			"format":      "JSON",
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	if err := userErrorsToErr(data.WebhookSubscriptionCreate.UserErrors); err != nil {
		return nil, err
	}
	sub := data.WebhookSubscriptionCreate.WebhookSubscription
	if sub == nil {
		return nil, model.NewUpstreamError("Shopify", fmt.Errorf("no subscription returned"))
	}
	w := toWebhook(sub)
	return &w, nil
}

func (a *Adapter) DeleteWebhook(ctx context.Context, _ *model.Platform, req *adapter.DeleteWebhookRequest) (*adapter.DeleteWebhookResult, error) {
	if req.WebhookID == "" {
		return nil, model.NewValidationError("webhookId", "is required")
	}
	var data webhookDeleteData
	err := a.graphql(ctx, req.Domain, req.AccessToken, webhookSubscriptionDeleteMutation,
		map[string]any{"id": gid("WebhookSubscription", req.WebhookID)}, &data)
	if err != nil {
		return nil, err
	}
	if err := userErrorsToErr(data.WebhookSubscriptionDelete.UserErrors); err != nil {
		return nil, err
	}
	return &adapter.DeleteWebhookResult{Deleted: data.WebhookSubscriptionDelete.DeletedWebhookSubscriptionID != ""}, nil
}

func (a *Adapter) GetWebhooks(ctx context.Context, _ *model.Platform, req *adapter.GetWebhooksRequest) (*adapter.WebhookList, error) {
	var data webhooksData
	err := a.graphql(ctx, req.Domain, req.AccessToken, webhookSubscriptionsQuery, map[string]any{"first": 100}, &data)
	if err != nil {
		return nil, err
	}
	list := &adapter.WebhookList{Webhooks: make([]adapter.Webhook, 0, len(data.WebhookSubscriptions.Nodes))}
	for i := range data.WebhookSubscriptions.Nodes {
		list.Webhooks = append(list.Webhooks, toWebhook(&data.WebhookSubscriptions.Nodes[i]))
	}
	return list, nil
}

// SearchProducts pages through variants. A product/variant pair is looked
// up directly; a product id alone narrows the search to that product.
func (a *Adapter) SearchProducts(ctx context.Context, _ *model.Platform, req *adapter.SearchProductsRequest) (*adapter.SearchProductsResult, error) {
	if req.ProductID != "" && req.VariantID != "" {
		p, err := a.variant(ctx, req.Domain, req.AccessToken, req.VariantID)
		if err != nil {
			return nil, err
		}
		return &adapter.SearchProductsResult{Products: []adapter.Product{*p}}, nil
	}

	query := req.SearchEntry
	if req.ProductID != "" {
		query = "product_id:" + legacyID(req.ProductID)
	}
	vars := map[string]any{"first": searchPageSize}
	if query != "" {
		vars["query"] = query
	}
	if req.After != "" {
		vars["after"] = req.After
	}

	var data productVariantsData
	if err := a.graphql(ctx, req.Domain, req.AccessToken, productVariantsQuery, vars, &data); err != nil {
		return nil, err
	}
	res := &adapter.SearchProductsResult{Products: make([]adapter.Product, 0, len(data.ProductVariants.Nodes))}
	for i := range data.ProductVariants.Nodes {
		res.Products = append(res.Products, toProduct(&data.ProductVariants.Nodes[i]))
	}
	if data.ProductVariants.PageInfo.HasNextPage {
		res.Next = data.ProductVariants.PageInfo.EndCursor
	}
	return res, nil
}

// GetProduct returns one variant, or the first variant of the product when
// no variant id is given.
func (a *Adapter) GetProduct(ctx context.Context, _ *model.Platform, req *adapter.GetProductRequest) (*adapter.Product, error) {
	if req.ProductID == "" && req.VariantID == "" {
		return nil, model.NewValidationError("productId", "is required")
	}
	if req.VariantID != "" {
		return a.variant(ctx, req.Domain, req.AccessToken, req.VariantID)
	}

	var data productVariantsData
	err := a.graphql(ctx, req.Domain, req.AccessToken, productVariantsQuery, map[string]any{
		"first": 1,
		"query": "product_id:" + legacyID(req.ProductID),
	}, &data)
	if err != nil {
		return nil, err
	}
	if len(data.ProductVariants.Nodes) == 0 {
		return nil, model.NewNotFoundError("product " + req.ProductID)
	}
	p := toProduct(&data.ProductVariants.Nodes[0])
	return &p, nil
}

func (a *Adapter) variant(ctx context.Context, domain, token, variantID string) (*adapter.Product, error) {
	var data productVariantData
	err := a.graphql(ctx, domain, token, productVariantQuery,
		map[string]any{"id": gid("ProductVariant", variantID)}, &data)
	if err != nil {
		return nil, err
	}
	if data.ProductVariant == nil {
		return nil, model.NewNotFoundError("variant " + variantID)
	}
	p := toProduct(data.ProductVariant)
	return &p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
