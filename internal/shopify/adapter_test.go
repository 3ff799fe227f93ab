package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

var testPlatform = &model.Platform{ID: ID, Name: "Shopify", Kind: model.PlatformKindShop, AppKey: "key", AppSecret: "secret"}

// graphqlServer answers Admin API calls with the first responder whose
// marker appears in the query.
func graphqlServer(t *testing.T, responders map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/"+apiVersion+"/graphql.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get(accessTokenHeader); got != "shpat_test" {
			t.Errorf("%s = %q", accessTokenHeader, got)
		}
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		for marker, body := range responders {
			if strings.Contains(req.Query, marker) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, body)
				return
			}
		}
		t.Errorf("unexpected query: %s", req.Query)
		http.Error(w, "unexpected", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth(t *testing.T) {
	a := New(nil, WithScopes("read_orders", "write_fulfillments"))
	res, err := a.OAuth(context.Background(), testPlatform, &adapter.OAuthRequest{
		Shop:        "demo.myshopify.com",
		State:       "signed-state",
		RedirectURI: "https://router.example/oauth/callback",
	})
	if err != nil {
		t.Fatalf("OAuth() error = %v", err)
	}
	u, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}
	if u.Host != "demo.myshopify.com" || u.Path != "/admin/oauth/authorize" {
		t.Errorf("url = %s", res.URL)
	}
	q := u.Query()
	if q.Get("client_id") != "key" || q.Get("state") != "signed-state" || q.Get("scope") != "read_orders,write_fulfillments" {
		t.Errorf("query = %v", q)
	}
	if q.Get("redirect_uri") != "https://router.example/oauth/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}

	if _, err := a.OAuth(context.Background(), testPlatform, &adapter.OAuthRequest{State: "s"}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("OAuth() without shop error = %v", err)
	}
}

func TestOAuthCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/oauth/access_token" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["client_id"] != "key" || body["client_secret"] != "secret" || body["code"] != "abc" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"access_token":"shpat_new","scope":"read_orders"}`)
	}))
	defer srv.Close()

	tok, err := New(srv.Client()).OAuthCallback(context.Background(), testPlatform, &adapter.OAuthCallbackRequest{
		Code: "abc",
		Shop: srv.URL,
	})
	if err != nil {
		t.Fatalf("OAuthCallback() error = %v", err)
	}
	if tok.AccessToken != "shpat_new" || tok.RefreshToken != "" || tok.TokenExpiresAt != nil {
		t.Errorf("token = %+v", tok)
	}
}

func TestOAuthCallback_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_request","error_description":"The authorization code was not found or was already used"}`)
	}))
	defer srv.Close()

	_, err := New(srv.Client()).OAuthCallback(context.Background(), testPlatform, &adapter.OAuthCallbackRequest{Code: "used", Shop: srv.URL})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("error = %v, want 400 APIError", err)
	}
	if !strings.Contains(apiErr.Message, "already used") {
		t.Errorf("message = %q", apiErr.Message)
	}
}

const orderCreatedBody = `{
  "id": 5512345678901,
  "name": "#1042",
  "email": "",
  "contact_email": "buyer@example.com",
  "currency": "USD",
  "total_price": "54.50",
  "subtotal_price": "50.00",
  "total_discounts": "0.00",
  "total_tax": "4.50",
  "created_at": "2025-03-01T10:00:00-05:00",
  "shipping_address": {
    "first_name": "Ada", "last_name": "Lovelace", "address1": "1 Main St", "address2": null,
    "city": "Springfield", "province": "Ohio", "zip": "45501", "country": "United States", "country_code": "US"
  },
  "line_items": [
    {"title": "Mug", "name": "Mug - Blue", "product_id": 111, "variant_id": 222, "quantity": 2, "price": "20.00"},
    {"title": "Gift wrap", "product_id": null, "variant_id": null, "quantity": 1, "price": "10.00"}
  ]
}`

func TestCreateOrderWebhookHandler(t *testing.T) {
	in, err := New(nil).CreateOrderWebhookHandler(context.Background(), testPlatform, &adapter.WebhookEventRequest{
		Event: json.RawMessage(orderCreatedBody),
	})
	if err != nil {
		t.Fatalf("CreateOrderWebhookHandler() error = %v", err)
	}
	if in.OrderID != "5512345678901" || in.OrderName != "#1042" || in.Email != "buyer@example.com" {
		t.Errorf("order = %+v", in)
	}
	if !in.TotalPrice.Equal(decimal.RequireFromString("54.50")) || !in.TotalTax.Equal(decimal.RequireFromString("4.50")) {
		t.Errorf("totals = %s / %s", in.TotalPrice, in.TotalTax)
	}
	if in.Address.StreetAddress1 != "1 Main St" || in.Address.State != "Ohio" || in.Address.Country != "US" {
		t.Errorf("address = %+v", in.Address)
	}
	if in.CreatedAt == nil || in.CreatedAt.UTC().Hour() != 15 {
		t.Errorf("createdAt = %v", in.CreatedAt)
	}
	if len(in.LineItems) != 2 {
		t.Fatalf("got %d lines, want 2", len(in.LineItems))
	}
	if l := in.LineItems[0]; l.ProductID != "111" || l.VariantID != "222" || l.Quantity != 2 || l.Name != "Mug - Blue" {
		t.Errorf("line 0 = %+v", l)
	}
	if l := in.LineItems[1]; l.ProductID != "" || l.VariantID != "" || l.Name != "Gift wrap" {
		t.Errorf("custom line = %+v", l)
	}
}

func TestWebhookHandlers_Invalid(t *testing.T) {
	a := New(nil)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<xml/>`},
		{"missing id", `{"name":"#1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &adapter.WebhookEventRequest{Event: json.RawMessage(tt.body)}
			if _, err := a.CreateOrderWebhookHandler(context.Background(), testPlatform, ev); !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("create error = %v", err)
			}
			if _, err := a.CancelOrderWebhookHandler(context.Background(), testPlatform, ev); !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("cancel error = %v", err)
			}
		})
	}
}

func TestCancelOrderWebhookHandler(t *testing.T) {
	ev, err := New(nil).CancelOrderWebhookHandler(context.Background(), testPlatform, &adapter.WebhookEventRequest{
		Event: json.RawMessage(`{"id": 5512345678901, "cancelled_at": "2025-03-02T09:00:00Z"}`),
	})
	if err != nil {
		t.Fatalf("CancelOrderWebhookHandler() error = %v", err)
	}
	if ev.OrderID != "5512345678901" || ev.PurchaseID != "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestAddTracking(t *testing.T) {
	var fulfillment map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "fulfillmentOrders("):
			if req.Variables["id"] != "gid://shopify/Order/1001" {
				t.Errorf("order id = %v", req.Variables["id"])
			}
			io.WriteString(w, `{"data":{"order":{"fulfillmentOrders":{"nodes":[
				{"id":"gid://shopify/FulfillmentOrder/1","status":"OPEN"},
				{"id":"gid://shopify/FulfillmentOrder/2","status":"CLOSED"}]}}}}`)
		case strings.Contains(req.Query, "fulfillmentCreate("):
			fulfillment, _ = req.Variables["fulfillment"].(map[string]any)
			io.WriteString(w, `{"data":{"fulfillmentCreate":{"fulfillment":{"id":"gid://shopify/Fulfillment/77"},"userErrors":[]}}}`)
		default:
			t.Errorf("unexpected query %s", req.Query)
		}
	}))
	defer srv.Close()

	res, err := New(srv.Client()).AddTracking(context.Background(), testPlatform, &adapter.AddTrackingRequest{
		Domain:          srv.URL,
		AccessToken:     "shpat_test",
		OrderID:         "1001",
		TrackingNumber:  "1Z999",
		TrackingCompany: "UPS",
	})
	if err != nil {
		t.Fatalf("AddTracking() error = %v", err)
	}
	if res.FulfillmentID != "77" {
		t.Errorf("fulfillment id = %q", res.FulfillmentID)
	}
	orders, _ := fulfillment["lineItemsByFulfillmentOrder"].([]any)
	if len(orders) != 1 {
		t.Fatalf("fulfillment orders sent = %v, want only the open one", fulfillment["lineItemsByFulfillmentOrder"])
	}
	info, _ := fulfillment["trackingInfo"].(map[string]any)
	if info["number"] != "1Z999" || info["company"] != "UPS" {
		t.Errorf("trackingInfo = %v", info)
	}
}

func TestAddTracking_NothingOpen(t *testing.T) {
	srv := graphqlServer(t, map[string]string{
		"fulfillmentOrders(": `{"data":{"order":{"fulfillmentOrders":{"nodes":[{"id":"gid://shopify/FulfillmentOrder/2","status":"CLOSED"}]}}}}`,
	})
	_, err := New(srv.Client()).AddTracking(context.Background(), testPlatform, &adapter.AddTrackingRequest{
		Domain: srv.URL, AccessToken: "shpat_test", OrderID: "1001", TrackingNumber: "1Z",
	})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestSearchProducts(t *testing.T) {
	srv := graphqlServer(t, map[string]string{
		"productVariants(": `{"data":{"productVariants":{
			"pageInfo":{"hasNextPage":true,"endCursor":"cursor-2"},
			"nodes":[{"id":"gid://shopify/ProductVariant/222","title":"Blue","price":"20.00","inventoryQuantity":7,
				"availableForSale":true,"image":null,
				"product":{"id":"gid://shopify/Product/111","title":"Mug","onlineStoreUrl":"https://demo.example/mug",
					"featuredImage":{"url":"https://cdn.example/mug.png"}}}]}}}`,
	})

	res, err := New(srv.Client()).SearchProducts(context.Background(), testPlatform, &adapter.SearchProductsRequest{
		Domain:      srv.URL,
		AccessToken: "shpat_test",
		SearchEntry: "mug",
	})
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if res.Next != "cursor-2" || len(res.Products) != 1 {
		t.Fatalf("result = %+v", res)
	}
	p := res.Products[0]
	if p.ProductID != "111" || p.VariantID != "222" || p.Title != "Mug - Blue" || p.Image != "https://cdn.example/mug.png" {
		t.Errorf("product = %+v", p)
	}
	if p.Inventory == nil || *p.Inventory != 7 || !p.Price.Equal(decimal.NewFromInt(20)) {
		t.Errorf("stock/price = %v / %s", p.Inventory, p.Price)
	}
}

func TestGetProduct_MissingVariant(t *testing.T) {
	srv := graphqlServer(t, map[string]string{
		"productVariant(": `{"data":{"productVariant":null}}`,
	})
	_, err := New(srv.Client()).GetProduct(context.Background(), testPlatform, &adapter.GetProductRequest{
		Domain: srv.URL, AccessToken: "shpat_test", ProductID: "111", VariantID: "999",
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestWebhookSubscriptions(t *testing.T) {
	var topic any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "webhookSubscriptionCreate("):
			topic = req.Variables["topic"]
			io.WriteString(w, `{"data":{"webhookSubscriptionCreate":{"webhookSubscription":{"id":"gid://shopify/WebhookSubscription/9",
				"topic":"ORDERS_CREATE","createdAt":"2025-03-01T00:00:00Z",
				"endpoint":{"__typename":"WebhookHttpEndpoint","callbackUrl":"https://router.example/hook"}},"userErrors":[]}}}`)
		case strings.Contains(req.Query, "webhookSubscriptionDelete("):
			if req.Variables["id"] != "gid://shopify/WebhookSubscription/9" {
				t.Errorf("delete id = %v", req.Variables["id"])
			}
			io.WriteString(w, `{"data":{"webhookSubscriptionDelete":{"deletedWebhookSubscriptionId":"gid://shopify/WebhookSubscription/9","userErrors":[]}}}`)
		case strings.Contains(req.Query, "webhookSubscriptions("):
			io.WriteString(w, `{"data":{"webhookSubscriptions":{"nodes":[{"id":"gid://shopify/WebhookSubscription/9","topic":"ORDERS_CREATE",
				"createdAt":"2025-03-01T00:00:00Z","endpoint":{"callbackUrl":"https://router.example/hook"}}]}}}`)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	a := New(srv.Client())

	w, err := a.CreateWebhook(ctx, testPlatform, &adapter.CreateWebhookRequest{
		Domain: srv.URL, AccessToken: "shpat_test", Topic: "orders/create", Endpoint: "https://router.example/hook",
	})
	if err != nil {
		t.Fatalf("CreateWebhook() error = %v", err)
	}
	if topic != "ORDERS_CREATE" || w.ID != "9" || w.Endpoint != "https://router.example/hook" {
		t.Errorf("topic %v, webhook %+v", topic, w)
	}

	list, err := a.GetWebhooks(ctx, testPlatform, &adapter.GetWebhooksRequest{Domain: srv.URL, AccessToken: "shpat_test"})
	if err != nil || len(list.Webhooks) != 1 || list.Webhooks[0].ID != "9" {
		t.Errorf("GetWebhooks() = %+v, %v", list, err)
	}

	del, err := a.DeleteWebhook(ctx, testPlatform, &adapter.DeleteWebhookRequest{Domain: srv.URL, AccessToken: "shpat_test", WebhookID: "9"})
	if err != nil || !del.Deleted {
		t.Errorf("DeleteWebhook() = %+v, %v", del, err)
	}
}

func TestGraphQLFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"errors":"[API] Invalid API key or access token"}`, model.ErrUnauthorized},
		{"throttled", http.StatusTooManyRequests, `{"errors":"Throttled"}`, model.ErrRateLimited},
		{"server error", http.StatusBadGateway, ``, model.ErrUpstreamError},
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"Field 'nope' doesn't exist"}]}`, model.ErrUpstreamError},
		{"user errors", http.StatusOK, `{"data":{"webhookSubscriptionCreate":{"webhookSubscription":null,
			"userErrors":[{"field":["webhookSubscription","callbackUrl"],"message":"Address is invalid"}]}}}`, model.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.Client()).CreateWebhook(context.Background(), testPlatform, &adapter.CreateWebhookRequest{
				Domain: srv.URL, AccessToken: "shpat_test", Topic: "orders/create", Endpoint: "bad",
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGraphQL_RequiresCredentials(t *testing.T) {
	_, err := New(nil).GetWebhooks(context.Background(), testPlatform, &adapter.GetWebhooksRequest{Domain: "demo.myshopify.com"})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestTopicEnumAndIDs(t *testing.T) {
	if got := topicEnum("orders/cancelled"); got != "ORDERS_CANCELLED" {
		t.Errorf("topicEnum = %q", got)
	}
	if got := topicEnum("ORDERS_CREATE"); got != "ORDERS_CREATE" {
		t.Errorf("topicEnum(enum) = %q", got)
	}
	if got := gid("Order", "gid://shopify/Order/5"); got != "gid://shopify/Order/5" {
		t.Errorf("gid passthrough = %q", got)
	}
	if got := legacyID("gid://shopify/Product/42"); got != "42" {
		t.Errorf("legacyID = %q", got)
	}
	if got := shopURL("demo.myshopify.com/"); got != "https://demo.myshopify.com" {
		t.Errorf("shopURL = %q", got)
	}
}
