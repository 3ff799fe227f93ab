package wix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// ID is the identifier platform rows use to route capabilities here.
const ID = "wix"

// defaultTokenTTL is how long Wix app access tokens live when the token
// response does not say.
const defaultTokenTTL = 5 * time.Minute

const searchPageSize = 25

// Adapter serves the channel side of the contract for Wix stores.
type Adapter struct {
	adapter.Unimplemented
	httpClient *http.Client
	baseURL    string
	installURL string
	now        func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points API calls at another host.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

// WithInstallURL replaces the app install page users are sent to.
func WithInstallURL(u string) Option {
	return func(a *Adapter) { a.installURL = u }
}

// New creates a Wix adapter. A nil client uses http.DefaultClient.
func New(httpClient *http.Client, opts ...Option) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	a := &Adapter{
		httpClient: httpClient,
		baseURL:    wixBaseURL,
		installURL: wixInstallURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

// OAuth returns the app install URL. Wix identifies the site during the
// install itself, so the shop parameter is not used.
func (a *Adapter) OAuth(_ context.Context, p *model.Platform, req *adapter.OAuthRequest) (*adapter.OAuthRedirect, error) {
	appID := req.AppKey
	if appID == "" {
		appID = p.AppKey
	}
	if appID == "" {
		return nil, model.NewValidationError("appKey", "Wix app id is not configured")
	}
	q := url.Values{}
	q.Set("appId", appID)
	q.Set("redirectUrl", req.RedirectURI)
	q.Set("state", req.State)
	return &adapter.OAuthRedirect{URL: a.installURL + "?" + q.Encode()}, nil
}

// OAuthCallback exchanges the install code. The token is structured: Wix
// access tokens expire and come with a refresh token.
func (a *Adapter) OAuthCallback(ctx context.Context, p *model.Platform, req *adapter.OAuthCallbackRequest) (*adapter.OAuthToken, error) {
	body := &OAuthAccessRequest{
		GrantType:    "authorization_code",
		ClientID:     firstNonEmpty(req.AppKey, p.AppKey),
		ClientSecret: firstNonEmpty(req.AppSecret, p.AppSecret),
		Code:         req.Code,
	}
	httpReq, err := a.newRequest(ctx, http.MethodPost, pathOAuthAccess, body, "")
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	var resp OAuthTokenResponse
	if err := a.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("exchanging install code: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, model.NewUpstreamError("Wix", fmt.Errorf("empty access token from OAuth"))
	}

	ttl := defaultTokenTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	expires := a.now().Add(ttl).UTC()
	return &adapter.OAuthToken{
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
		TokenExpiresAt: &expires,
	}, nil
}

// SearchProducts queries the catalog by name prefix. After is the result
// offset; a product id lists that product's variants instead.
func (a *Adapter) SearchProducts(ctx context.Context, _ *model.Platform, req *adapter.SearchProductsRequest) (*adapter.SearchProductsResult, error) {
	if req.ProductID != "" {
		wp, err := a.product(ctx, req.AccessToken, req.ProductID)
		if err != nil {
			return nil, err
		}
		products := productsFromWix(wp)
		if req.VariantID != "" {
			for _, p := range products {
				if p.VariantID == req.VariantID {
					return &adapter.SearchProductsResult{Products: []adapter.Product{p}}, nil
				}
			}
			return &adapter.SearchProductsResult{Products: []adapter.Product{}}, nil
		}
		return &adapter.SearchProductsResult{Products: products}, nil
	}

	offset := 0
	if req.After != "" {
		n, err := strconv.Atoi(req.After)
		if err != nil || n < 0 {
			return nil, model.NewValidationError("after", "must be a result offset")
		}
		offset = n
	}

	query := &WixProductQuery{IncludeVariants: true}
	query.Query.Paging = WixPaging{Limit: searchPageSize, Offset: offset}
	if req.SearchEntry != "" {
		filter, err := json.Marshal(map[string]any{"name": map[string]string{"$startsWith": req.SearchEntry}})
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		query.Query.Filter = string(filter)
	}

	var resp WixProductsResponse
	if err := a.call(ctx, http.MethodPost, pathProductsQuery, query, req.AccessToken, &resp); err != nil {
		return nil, err
	}
	res := &adapter.SearchProductsResult{Products: []adapter.Product{}}
	for i := range resp.Products {
		res.Products = append(res.Products, productsFromWix(&resp.Products[i])...)
	}
	if next := offset + len(resp.Products); len(resp.Products) > 0 && next < resp.TotalResults {
		res.Next = strconv.Itoa(next)
	}
	return res, nil
}

// GetProduct returns the variant asked for, or the product itself when no
// variant id is given.
func (a *Adapter) GetProduct(ctx context.Context, _ *model.Platform, req *adapter.GetProductRequest) (*adapter.Product, error) {
	if req.ProductID == "" {
		return nil, model.NewValidationError("productId", "is required")
	}
	wp, err := a.product(ctx, req.AccessToken, req.ProductID)
	if err != nil {
		return nil, err
	}
	products := productsFromWix(wp)
	if req.VariantID == "" {
		p := productFromWix(wp)
		return &p, nil
	}
	for i := range products {
		if products[i].VariantID == req.VariantID {
			return &products[i], nil
		}
	}
	return nil, model.NewNotFoundError("variant " + req.VariantID)
}

func (a *Adapter) product(ctx context.Context, token, productID string) (*WixProduct, error) {
	var resp WixProductResponse
	if err := a.call(ctx, http.MethodGet, pathProducts+url.PathEscape(productID), nil, token, &resp); err != nil {
		return nil, err
	}
	if resp.Product == nil {
		return nil, model.NewNotFoundError("product " + productID)
	}
	return resp.Product, nil
}

// CreatePurchase builds a checkout for the cart items shipped to the
// order's address and converts it into an order.
func (a *Adapter) CreatePurchase(ctx context.Context, _ *model.Platform, req *adapter.CreatePurchaseRequest) (*adapter.PurchaseResult, error) {
	checkoutReq, err := checkoutRequest(req)
	if err != nil {
		return nil, err
	}

	var checkout WixCheckoutResponse
	if err := a.call(ctx, http.MethodPost, pathCheckouts, checkoutReq, req.AccessToken, &checkout); err != nil {
		return nil, fmt.Errorf("creating checkout: %w", err)
	}
	if checkout.Checkout == nil || checkout.Checkout.ID == "" {
		return nil, model.NewUpstreamError("Wix", fmt.Errorf("empty checkout id"))
	}

	var order WixCreateOrderResponse
	path := fmt.Sprintf(pathCreateOrderFmt, url.PathEscape(checkout.Checkout.ID))
	if err := a.call(ctx, http.MethodPost, path, struct{}{}, req.AccessToken, &order); err != nil {
		return nil, fmt.Errorf("creating order from checkout %s: %w", checkout.Checkout.ID, err)
	}
	if order.OrderID == "" {
		return nil, model.NewUpstreamError("Wix", fmt.Errorf("empty order id"))
	}
	return &adapter.PurchaseResult{PurchaseID: order.OrderID}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
