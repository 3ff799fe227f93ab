package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// ID is the identifier platform rows use to route capabilities here.
const ID = "woocommerce"

// SignatureHeader carries the base64 HMAC-SHA256 of WooCommerce webhook
// bodies. Platform rows for this adapter set it as their signature header.
const SignatureHeader = "X-WC-Webhook-Signature"

// orderMetaKey tags channel orders with the router order they serve.
const orderMetaKey = "_order_router_order_id"

const searchPageSize = 20

// Adapter serves the channel side of the contract for WooCommerce stores.
type Adapter struct {
	adapter.Unimplemented
	httpClient *http.Client
}

// New creates a WooCommerce adapter. A nil client uses http.DefaultClient.
func New(httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{httpClient: httpClient}
}

var _ adapter.Adapter = (*Adapter)(nil)

// SearchProducts lists catalog products page by page. After is the page
// number to fetch; Next is set while more pages remain. A product id lists
// that product's variations instead.
func (a *Adapter) SearchProducts(ctx context.Context, _ *model.Platform, req *adapter.SearchProductsRequest) (*adapter.SearchProductsResult, error) {
	if req.ProductID != "" && req.VariantID != "" {
		p, err := a.getProduct(ctx, req.Domain, req.AccessToken, req.ProductID, req.VariantID)
		if err != nil {
			return nil, err
		}
		return &adapter.SearchProductsResult{Products: []adapter.Product{*p}}, nil
	}

	page := 1
	if req.After != "" {
		n, err := strconv.Atoi(req.After)
		if err != nil || n < 1 {
			return nil, model.NewValidationError("after", "must be a page number")
		}
		page = n
	}
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(searchPageSize))
	q.Set("page", strconv.Itoa(page))

	if req.ProductID != "" {
		return a.searchVariations(ctx, req, q, page)
	}

	if req.SearchEntry != "" {
		q.Set("search", req.SearchEntry)
	}
	var products []WooProduct
	resp, err := a.do(ctx, http.MethodGet, req.Domain, req.AccessToken, "/products", q, nil, &products)
	if err != nil {
		return nil, err
	}
	res := &adapter.SearchProductsResult{Products: make([]adapter.Product, 0, len(products))}
	for i := range products {
		res.Products = append(res.Products, productFromWoo(&products[i]))
	}
	if page < resp.totalPages {
		res.Next = strconv.Itoa(page + 1)
	}
	return res, nil
}

func (a *Adapter) searchVariations(ctx context.Context, req *adapter.SearchProductsRequest, q url.Values, page int) (*adapter.SearchProductsResult, error) {
	var parent WooProduct
	if _, err := a.do(ctx, http.MethodGet, req.Domain, req.AccessToken, "/products/"+req.ProductID, nil, nil, &parent); err != nil {
		return nil, err
	}
	if len(parent.Variations) == 0 {
		return &adapter.SearchProductsResult{Products: []adapter.Product{productFromWoo(&parent)}}, nil
	}

	var variations []WooVariation
	resp, err := a.do(ctx, http.MethodGet, req.Domain, req.AccessToken, "/products/"+req.ProductID+"/variations", q, nil, &variations)
	if err != nil {
		return nil, err
	}
	res := &adapter.SearchProductsResult{Products: make([]adapter.Product, 0, len(variations))}
	for i := range variations {
		res.Products = append(res.Products, variationFromWoo(&parent, &variations[i]))
	}
	if page < resp.totalPages {
		res.Next = strconv.Itoa(page + 1)
	}
	return res, nil
}

func (a *Adapter) GetProduct(ctx context.Context, _ *model.Platform, req *adapter.GetProductRequest) (*adapter.Product, error) {
	if req.ProductID == "" {
		return nil, model.NewValidationError("productId", "is required")
	}
	return a.getProduct(ctx, req.Domain, req.AccessToken, req.ProductID, req.VariantID)
}

func (a *Adapter) getProduct(ctx context.Context, domain, token, productID, variantID string) (*adapter.Product, error) {
	var parent WooProduct
	if _, err := a.do(ctx, http.MethodGet, domain, token, "/products/"+productID, nil, nil, &parent); err != nil {
		return nil, err
	}
	if variantID == "" || variantID == productID {
		p := productFromWoo(&parent)
		return &p, nil
	}
	var v WooVariation
	if _, err := a.do(ctx, http.MethodGet, domain, token, "/products/"+productID+"/variations/"+variantID, nil, nil, &v); err != nil {
		return nil, err
	}
	p := variationFromWoo(&parent, &v)
	return &p, nil
}

// UpdateProduct sets the regular price and/or stock level. Setting stock
// turns on stock management for the item.
func (a *Adapter) UpdateProduct(ctx context.Context, _ *model.Platform, req *adapter.UpdateProductRequest) (*adapter.Product, error) {
	if req.ProductID == "" {
		return nil, model.NewValidationError("productId", "is required")
	}
	if req.Price == nil && req.Inventory == nil {
		return nil, model.NewValidationError("update", "price or inventory is required")
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, model.NewValidationError("price", "must not be negative")
	}

	update := WooStockUpdate{StockQuantity: req.Inventory}
	if req.Price != nil {
		update.RegularPrice = model.FormatPrice(*req.Price)
	}
	if req.Inventory != nil {
		manage := true
		update.ManageStock = &manage
	}

	path := "/products/" + req.ProductID
	if req.VariantID != "" && req.VariantID != req.ProductID {
		path += "/variations/" + req.VariantID
	}
	if _, err := a.do(ctx, http.MethodPut, req.Domain, req.AccessToken, path, nil, update, nil); err != nil {
		return nil, err
	}
	return a.getProduct(ctx, req.Domain, req.AccessToken, req.ProductID, req.VariantID)
}

// CreatePurchase places one unpaid order on the store for the cart items.
func (a *Adapter) CreatePurchase(ctx context.Context, _ *model.Platform, req *adapter.CreatePurchaseRequest) (*adapter.PurchaseResult, error) {
	order, err := orderRequest(req)
	if err != nil {
		return nil, err
	}
	var created WooOrder
	if _, err := a.do(ctx, http.MethodPost, req.Domain, req.AccessToken, "/orders", nil, order, &created); err != nil {
		return nil, err
	}
	if created.ID == 0 {
		return nil, model.NewUpstreamError("WooCommerce", fmt.Errorf("order created without an id"))
	}
	id := strconv.Itoa(created.ID)
	return &adapter.PurchaseResult{
		PurchaseID: id,
		URL:        storeURL(req.Domain) + "/wp-admin/post.php?post=" + id + "&action=edit",
	}, nil
}

// CancelOrderWebhookHandler reads an order.updated body. Only orders that
// moved to cancelled produce an event.
func (a *Adapter) CancelOrderWebhookHandler(_ context.Context, _ *model.Platform, req *adapter.WebhookEventRequest) (*adapter.CancelEvent, error) {
	var o WooOrder
	if err := json.Unmarshal(req.Event, &o); err != nil {
		return nil, model.NewValidationError("event", "not a WooCommerce order: "+err.Error())
	}
	if o.ID == 0 {
		return nil, model.NewValidationError("event", "order id is missing")
	}
	if o.Status != "cancelled" {
		return nil, model.NewValidationError("event", fmt.Sprintf("order %d is %s, not cancelled", o.ID, o.Status))
	}
	return &adapter.CancelEvent{PurchaseID: strconv.Itoa(o.ID)}, nil
}

func (a *Adapter) CreateWebhook(ctx context.Context, _ *model.Platform, req *adapter.CreateWebhookRequest) (*adapter.Webhook, error) {
	if req.Topic == "" || req.Endpoint == "" {
		return nil, model.NewValidationError("webhook", "topic and endpoint are required")
	}
	body := WooWebhookRequest{
		Name:        "order-router " + req.Topic,
		Topic:       req.Topic,
		DeliveryURL: req.Endpoint,
		Status:      "active",
	}
	var created WooWebhook
	if _, err := a.do(ctx, http.MethodPost, req.Domain, req.AccessToken, "/webhooks", nil, body, &created); err != nil {
		return nil, err
	}
	w := webhookFromWoo(&created)
	return &w, nil
}

func (a *Adapter) DeleteWebhook(ctx context.Context, _ *model.Platform, req *adapter.DeleteWebhookRequest) (*adapter.DeleteWebhookResult, error) {
	if req.WebhookID == "" {
		return nil, model.NewValidationError("webhookId", "is required")
	}
	q := url.Values{"force": {"true"}}
	if _, err := a.do(ctx, http.MethodDelete, req.Domain, req.AccessToken, "/webhooks/"+req.WebhookID, q, nil, nil); err != nil {
		return nil, err
	}
	return &adapter.DeleteWebhookResult{Deleted: true}, nil
}

func (a *Adapter) GetWebhooks(ctx context.Context, _ *model.Platform, req *adapter.GetWebhooksRequest) (*adapter.WebhookList, error) {
	var hooks []WooWebhook
	q := url.Values{"per_page": {"100"}}
	if _, err := a.do(ctx, http.MethodGet, req.Domain, req.AccessToken, "/webhooks", q, nil, &hooks); err != nil {
		return nil, err
	}
	list := &adapter.WebhookList{Webhooks: make([]adapter.Webhook, 0, len(hooks))}
	for i := range hooks {
		list.Webhooks = append(list.Webhooks, webhookFromWoo(&hooks[i]))
	}
	return list, nil
}
