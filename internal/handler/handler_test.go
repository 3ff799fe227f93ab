package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-router/internal/caller"
	"order-router/internal/match"
	"order-router/internal/model"
	"order-router/internal/oauth"
	"order-router/internal/placement"
	"order-router/internal/webhook"
)

type fakeWebhooks struct {
	ReceiveFunc func(ctx context.Context, kind webhook.EventKind, id string, body []byte, header http.Header) (*webhook.Receipt, error)
}

func (f *fakeWebhooks) Receive(ctx context.Context, kind webhook.EventKind, id string, body []byte, header http.Header) (*webhook.Receipt, error) {
	return f.ReceiveFunc(ctx, kind, id, body, header)
}

type fakeOAuth struct {
	StartFunc    func(ctx context.Context, platformID string, kind model.PlatformKind, shop string) (string, error)
	CallbackFunc func(ctx context.Context, req oauth.CallbackRequest) (string, error)
}

func (f *fakeOAuth) Start(ctx context.Context, platformID string, kind model.PlatformKind, shop string) (string, error) {
	return f.StartFunc(ctx, platformID, kind, shop)
}

func (f *fakeOAuth) Callback(ctx context.Context, req oauth.CallbackRequest) (string, error) {
	return f.CallbackFunc(ctx, req)
}

type fakeMatcher struct {
	MatchOrderFunc func(ctx context.Context, ownerID, orderID string) (*model.Match, error)
	ApplyMatchFunc func(ctx context.Context, ownerID, orderID string) (*match.ApplyResult, error)
	GetMatchFunc   func(ctx context.Context, ownerID string, input []model.ItemKey, opts match.GetMatchOptions) (*match.Lookup, error)
}

func (f *fakeMatcher) MatchOrder(ctx context.Context, ownerID, orderID string) (*model.Match, error) {
	return f.MatchOrderFunc(ctx, ownerID, orderID)
}

func (f *fakeMatcher) ApplyMatch(ctx context.Context, ownerID, orderID string) (*match.ApplyResult, error) {
	return f.ApplyMatchFunc(ctx, ownerID, orderID)
}

func (f *fakeMatcher) GetMatch(ctx context.Context, ownerID string, input []model.ItemKey, opts match.GetMatchOptions) (*match.Lookup, error) {
	return f.GetMatchFunc(ctx, ownerID, input, opts)
}

type fakePlacer struct {
	PlaceFunc func(ctx context.Context, ownerID string, orderIDs []string) ([]placement.OrderOutcome, error)
}

func (f *fakePlacer) PlaceOwnedOrders(ctx context.Context, ownerID string, orderIDs []string) ([]placement.OrderOutcome, error) {
	return f.PlaceFunc(ctx, ownerID, orderIDs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer mounts the routes behind caller.Middleware as cmd/router does.
func testServer(d Deps) http.Handler {
	if d.Webhooks == nil {
		d.Webhooks = &fakeWebhooks{}
	}
	if d.OAuth == nil {
		d.OAuth = &fakeOAuth{}
	}
	if d.Matcher == nil {
		d.Matcher = &fakeMatcher{}
	}
	if d.Placer == nil {
		d.Placer = &fakePlacer{}
	}
	d.Logger = testLogger()
	mux := http.NewServeMux()
	New(d).RegisterRoutes(mux)
	return caller.Middleware(d.Logger)(mux)
}

func errorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(Deps{})
	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		var resp healthResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Status != "ok" {
			t.Errorf("%s status = %q, want ok", path, resp.Status)
		}
	}
}

func TestHandleWebhook(t *testing.T) {
	type call struct {
		kind webhook.EventKind
		id   string
		body string
		sig  string
	}
	var got call
	hooks := &fakeWebhooks{ReceiveFunc: func(_ context.Context, kind webhook.EventKind, id string, body []byte, header http.Header) (*webhook.Receipt, error) {
		got = call{kind: kind, id: id, body: string(body), sig: header.Get("X-Shopify-Hmac-Sha256")}
		return &webhook.Receipt{Received: true}, nil
	}}
	srv := testServer(Deps{Webhooks: hooks})

	tests := []struct {
		path string
		want call
	}{
		{"/webhooks/channels/ch-1/cancel", call{kind: webhook.EventChannelCancel, id: "ch-1"}},
		{"/webhooks/channels/ch-2/tracking", call{kind: webhook.EventChannelTracking, id: "ch-2"}},
		{"/webhooks/shops/shop-1/orders/create", call{kind: webhook.EventShopOrderCreate, id: "shop-1"}},
		{"/webhooks/shops/shop-1/orders/cancel", call{kind: webhook.EventShopOrderCancel, id: "shop-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			body := `{"id": 1,  "raw": true}`
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(body))
			req.Header.Set("X-Shopify-Hmac-Sha256", "sig")
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if strings.TrimSpace(w.Body.String()) != `{"received":true}` {
				t.Errorf("body = %s", w.Body.String())
			}
			want := tt.want
			want.body = body
			want.sig = "sig"
			if got != want {
				t.Errorf("Receive called with %+v, want %+v", got, want)
			}
		})
	}
}

func TestHandleWebhook_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "bad signature", err: fmt.Errorf("verify: %w", model.ErrInvalidWebhookSignature), body: "{}", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_WEBHOOK_SIGNATURE"},
		{name: "unknown channel", err: model.ErrNotFound, body: "{}", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "queue unavailable", err: &model.APIError{Code: "WEBHOOK_QUEUE_UNAVAILABLE", StatusCode: http.StatusServiceUnavailable}, body: "{}", wantStatus: http.StatusServiceUnavailable, wantCode: "WEBHOOK_QUEUE_UNAVAILABLE"},
		{name: "oversized body", body: strings.Repeat("a", MaxRequestBodySize+1), wantStatus: http.StatusRequestEntityTooLarge, wantCode: "PAYLOAD_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &fakeWebhooks{ReceiveFunc: func(context.Context, webhook.EventKind, string, []byte, http.Header) (*webhook.Receipt, error) {
				return nil, tt.err
			}}
			w := httptest.NewRecorder()
			testServer(Deps{Webhooks: hooks}).ServeHTTP(w,
				httptest.NewRequest(http.MethodPost, "/webhooks/channels/ch-1/cancel", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(t, w.Body); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestHandleOAuthStart(t *testing.T) {
	var gotPlatform, gotShop string
	var gotKind model.PlatformKind
	broker := &fakeOAuth{StartFunc: func(_ context.Context, platformID string, kind model.PlatformKind, shop string) (string, error) {
		gotPlatform, gotKind, gotShop = platformID, kind, shop
		return "https://shop.example/admin/oauth/authorize?client_id=k", nil
	}}
	srv := testServer(Deps{OAuth: broker})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/start?platform=shopify&type=shop&shop=acme.myshopify.com", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "https://shop.example/admin/oauth/authorize?client_id=k" {
		t.Errorf("Location = %s", loc)
	}
	if gotPlatform != "shopify" || gotKind != model.PlatformKindShop || gotShop != "acme.myshopify.com" {
		t.Errorf("Start(%s, %s, %s)", gotPlatform, gotKind, gotShop)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/start?type=shop", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing platform status = %d, want 400", w.Code)
	}
}

func TestHandleOAuthCallback(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "success", wantStatus: http.StatusFound},
		{name: "expired state", err: model.ErrStateExpired, wantStatus: http.StatusBadRequest, wantCode: "STATE_EXPIRED"},
		{name: "bad signature", err: model.ErrInvalidStateSignature, wantStatus: http.StatusBadRequest, wantCode: "INVALID_STATE_SIGNATURE"},
		{name: "unknown platform", err: model.ErrPlatformNotFound, wantStatus: http.StatusNotFound, wantCode: "PLATFORM_NOT_FOUND"},
		{name: "token exchange failed", err: &model.AdapterExecutionError{PlatformID: "wix", Capability: model.CapOAuthCallback, Cause: errors.New("boom")}, wantStatus: http.StatusBadGateway, wantCode: "ADAPTER_EXECUTION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got oauth.CallbackRequest
			broker := &fakeOAuth{CallbackFunc: func(_ context.Context, req oauth.CallbackRequest) (string, error) {
				got = req
				if tt.err != nil {
					return "", tt.err
				}
				return "https://dash.example/dashboard/platform/create-shop?platform=shopify", nil
			}}
			w := httptest.NewRecorder()
			testServer(Deps{OAuth: broker}).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
				"/oauth/callback?code=c1&state=s1&shop=acme.myshopify.com&error=&error_description=", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got.Code != "c1" || got.State != "s1" || got.Shop != "acme.myshopify.com" {
				t.Errorf("Callback(%+v)", got)
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w.Body); code != tt.wantCode {
					t.Errorf("code = %s, want %s", code, tt.wantCode)
				}
			} else if !strings.Contains(w.Header().Get("Location"), "create-shop") {
				t.Errorf("Location = %s", w.Header().Get("Location"))
			}
		})
	}
}

func TestHandlePlaceOrders(t *testing.T) {
	var gotOwner string
	var gotIDs []string
	placer := &fakePlacer{PlaceFunc: func(_ context.Context, ownerID string, ids []string) ([]placement.OrderOutcome, error) {
		gotOwner, gotIDs = ownerID, ids
		return []placement.OrderOutcome{
			{OrderID: "o1", Status: model.OrderStatusAwaiting, Groups: []placement.GroupOutcome{{ChannelID: "ch-1", PurchaseID: "po-1"}}},
			{OrderID: "o2", Status: model.OrderStatusPending, Groups: []placement.GroupOutcome{{ChannelID: "ch-2", Error: "out of stock"}}},
		}, nil
	}}
	srv := testServer(Deps{Placer: placer})

	req := httptest.NewRequest(http.MethodPost, "/orders/place", strings.NewReader(`{"orderIds":["o1","o2"]}`))
	req.Header.Set(caller.Header, `owner="user-1"`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotOwner != "user-1" || strings.Join(gotIDs, ",") != "o1,o2" {
		t.Errorf("PlaceOwnedOrders(%s, %v)", gotOwner, gotIDs)
	}
	var resp placeOrdersResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 || resp.Orders[1].Groups[0].Error != "out of stock" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandlePlaceOrders_Errors(t *testing.T) {
	placer := &fakePlacer{PlaceFunc: func(context.Context, string, []string) ([]placement.OrderOutcome, error) {
		return nil, model.NewValidationError("orderIds", "at least one order id is required")
	}}
	srv := testServer(Deps{Placer: placer})

	tests := []struct {
		name       string
		header     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "no caller", body: `{"orderIds":["o1"]}`, wantStatus: http.StatusUnauthorized, wantCode: caller.CodeCallerRequired},
		{name: "invalid json", header: `owner="u1"`, body: `{`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "empty ids", header: `owner="u1"`, body: `{"orderIds":[]}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders/place", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set(caller.Header, tt.header)
			}
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(t, w.Body); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestHandleMatchAndApply(t *testing.T) {
	m := &fakeMatcher{
		MatchOrderFunc: func(_ context.Context, ownerID, orderID string) (*model.Match, error) {
			if orderID == "missing" {
				return nil, fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
			}
			return &model.Match{ID: "m-1", OwnerID: ownerID}, nil
		},
		ApplyMatchFunc: func(_ context.Context, ownerID, orderID string) (*match.ApplyResult, error) {
			if orderID == "unmatched" {
				return nil, model.ErrNoMatchFound
			}
			return &match.ApplyResult{MatchID: "m-1", Added: 2}, nil
		},
	}
	srv := testServer(Deps{Matcher: m})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/orders/o1/match", http.StatusOK, `"id":"m-1"`},
		{"/orders/missing/match", http.StatusNotFound, `"NOT_FOUND"`},
		{"/orders/o1/apply-match", http.StatusOK, `"added":2`},
		{"/orders/unmatched/apply-match", http.StatusNotFound, `"NO_MATCH_FOUND"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			req.Header.Set(caller.Header, `owner="user-1"`)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleLookup(t *testing.T) {
	var gotOpts match.GetMatchOptions
	var gotInput []model.ItemKey
	m := &fakeMatcher{GetMatchFunc: func(_ context.Context, ownerID string, input []model.ItemKey, opts match.GetMatchOptions) (*match.Lookup, error) {
		gotInput, gotOpts = input, opts
		return &match.Lookup{MatchID: "m-1", Products: []match.MatchedProduct{{ChannelID: "ch-1", ChannelName: "Supplier", Quantity: 2}}}, nil
	}}
	srv := testServer(Deps{Matcher: m})

	body := `{"input":[{"productId":"p1","variantId":"v1","quantity":2}],"requireAll":true}`
	req := httptest.NewRequest(http.MethodPost, "/matches/lookup", strings.NewReader(body))
	req.Header.Set(caller.Header, `owner="user-1"`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !gotOpts.RequireAll || len(gotInput) != 1 || gotInput[0] != (model.ItemKey{ProductID: "p1", VariantID: "v1", Quantity: 2}) {
		t.Errorf("GetMatch(%+v, %+v)", gotInput, gotOpts)
	}
	var lookup match.Lookup
	json.NewDecoder(w.Body).Decode(&lookup)
	if lookup.MatchID != "m-1" || lookup.Products[0].ChannelName != "Supplier" {
		t.Errorf("lookup = %+v", lookup)
	}

	req = httptest.NewRequest(http.MethodPost, "/matches/lookup", strings.NewReader(`{"input":[]}`))
	req.Header.Set(caller.Header, `owner="user-1"`)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty input status = %d, want 400", w.Code)
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	h := New(Deps{Logger: testLogger()})
	w := httptest.NewRecorder()
	h.writeError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused to 10.0.0.3"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.3") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}
