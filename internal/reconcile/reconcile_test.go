package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"order-router/internal/adapter"
	"order-router/internal/model"
	"order-router/internal/store/memory"
)

func TestDiffCartItems_EmptyToItems(t *testing.T) {
	desired := []DesiredItem{
		{ChannelID: "ch-1", ProductID: "prod-1", Quantity: 2},
		{ChannelID: "ch-2", ProductID: "prod-2", Quantity: 1},
	}

	diff := DiffCartItems(nil, desired)

	if len(diff.ToAdd) != 2 {
		t.Errorf("ToAdd = %d, want 2", len(diff.ToAdd))
	}
	if len(diff.ToRemove) != 0 || len(diff.ToUpdate) != 0 {
		t.Errorf("ToRemove = %d, ToUpdate = %d, want 0", len(diff.ToRemove), len(diff.ToUpdate))
	}
	if diff.ToAdd[0].ProductID != "prod-1" || diff.ToAdd[1].ProductID != "prod-2" {
		t.Errorf("ToAdd order = %+v, want input order", diff.ToAdd)
	}
}

func TestDiffCartItems_ItemsToEmpty(t *testing.T) {
	current := []CurrentItem{
		{CartItemID: "ci-1", ChannelID: "ch-1", ProductID: "prod-1", Quantity: 2},
		{CartItemID: "ci-2", ChannelID: "ch-1", ProductID: "prod-2", Quantity: 1, Placed: true},
	}

	diff := DiffCartItems(current, nil)

	if len(diff.ToRemove) != 1 || diff.ToRemove[0].CartItemID != "ci-1" {
		t.Errorf("ToRemove = %+v, want only the unplaced item", diff.ToRemove)
	}
}

func TestDiffCartItems_QuantityUpdate(t *testing.T) {
	current := []CurrentItem{
		{CartItemID: "ci-1", ChannelID: "ch-1", ProductID: "prod-1", VariantID: "v", Quantity: 2},
	}
	desired := []DesiredItem{
		{ChannelID: "ch-1", ProductID: "prod-1", VariantID: "v", Quantity: 5, Price: decimal.NewFromInt(3)},
	}

	diff := DiffCartItems(current, desired)

	if len(diff.ToUpdate) != 1 {
		t.Fatalf("ToUpdate = %d, want 1", len(diff.ToUpdate))
	}
	up := diff.ToUpdate[0]
	if up.Current.CartItemID != "ci-1" || up.NewQuantity != 5 || !up.NewPrice.Equal(decimal.NewFromInt(3)) {
		t.Errorf("ToUpdate[0] = %+v", up)
	}
	if len(diff.ToAdd) != 0 || len(diff.ToRemove) != 0 {
		t.Errorf("ToAdd = %d, ToRemove = %d, want 0", len(diff.ToAdd), len(diff.ToRemove))
	}
}

func TestDiffCartItems_PlacedNeverResized(t *testing.T) {
	current := []CurrentItem{
		{CartItemID: "ci-1", ChannelID: "ch-1", ProductID: "prod-1", Quantity: 2, Placed: true},
	}
	desired := []DesiredItem{
		{ChannelID: "ch-1", ProductID: "prod-1", Quantity: 4},
	}

	if diff := DiffCartItems(current, desired); !diff.IsEmpty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestDiffCartItems_ChannelIsPartOfKey(t *testing.T) {
	current := []CurrentItem{
		{CartItemID: "ci-1", ChannelID: "ch-1", ProductID: "prod-1", Quantity: 1},
	}
	desired := []DesiredItem{
		{ChannelID: "ch-2", ProductID: "prod-1", Quantity: 1},
	}

	diff := DiffCartItems(current, desired)

	if len(diff.ToAdd) != 1 || len(diff.ToRemove) != 1 {
		t.Errorf("ToAdd = %d, ToRemove = %d, want 1 and 1", len(diff.ToAdd), len(diff.ToRemove))
	}
}

func TestDiffCartItems_NoChange(t *testing.T) {
	current := []CurrentItem{
		{CartItemID: "ci-1", ChannelID: "ch-1", ProductID: "prod-1", VariantID: "a", Quantity: 1},
	}
	desired := []DesiredItem{
		{ChannelID: "ch-1", ProductID: "prod-1", VariantID: "a", Quantity: 1},
	}

	if diff := DiffCartItems(current, desired); !diff.IsEmpty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestCartDiff_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		diff CartDiff
		want bool
	}{
		{"empty", CartDiff{}, true},
		{"add", CartDiff{ToAdd: []DesiredItem{{}}}, false},
		{"remove", CartDiff{ToRemove: []CurrentItem{{}}}, false},
		{"update", CartDiff{ToUpdate: []ItemToUpdate{{}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.diff.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedPlacedOrder stores an order with two placed purchases on two channels
// and returns the store and order id.
func seedPlacedOrder(t *testing.T) (*memory.Store, string) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	s.PutPlatform(model.Platform{ID: "shopify", Name: "Shopify", Kind: model.PlatformKindShop})
	s.PutShop(model.Shop{Connection: model.Connection{ID: "shop-1", OwnerID: "user-1", Domain: "shop.example", AccessToken: "shop-token", PlatformID: "shopify"}})

	o := &model.Order{OwnerID: "user-1", ShopID: "shop-1", OrderID: "1001", Status: model.OrderStatusAwaiting}
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	for _, ci := range []model.CartItem{
		{ChannelID: "ch-1", ProductID: "a", PurchaseID: "po-1", Status: model.CartItemStatusInProcess},
		{ChannelID: "ch-1", ProductID: "b", PurchaseID: "po-1", Status: model.CartItemStatusInProcess},
		{ChannelID: "ch-2", ProductID: "c", PurchaseID: "po-2", Status: model.CartItemStatusInProcess},
	} {
		ci.OrderID = o.ID
		if err := s.CreateCartItem(ctx, &ci); err != nil {
			t.Fatalf("CreateCartItem() error = %v", err)
		}
	}
	return s, o.ID
}

func TestCancelPurchase_AnyOrderConverges(t *testing.T) {
	type cancel struct{ channel, purchase string }
	tests := []struct {
		name   string
		events []cancel
	}{
		{"first then second", []cancel{{"ch-1", "po-1"}, {"ch-2", "po-2"}}},
		{"second then first", []cancel{{"ch-2", "po-2"}, {"ch-1", "po-1"}}},
		{"with redelivery", []cancel{{"ch-2", "po-2"}, {"ch-2", "po-2"}, {"ch-1", "po-1"}, {"ch-1", "po-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, orderID := seedPlacedOrder(t)
			r := New(s, &adapter.Mock{}, testLogger())

			for i, ev := range tt.events {
				if _, err := r.CancelPurchase(ctx, ev.channel, ev.purchase); err != nil {
					t.Fatalf("CancelPurchase(%d) error = %v", i, err)
				}
				order, _ := s.GetOrder(ctx, orderID)
				last := i == len(tt.events)-1
				if !last && order.Status == model.OrderStatusCancelled && !model.AllCancelled(order.CartItems) {
					t.Fatalf("order cancelled with open cart items after event %d", i)
				}
			}

			order, _ := s.GetOrder(ctx, orderID)
			if order.Status != model.OrderStatusCancelled {
				t.Errorf("order status = %s, want CANCELLED", order.Status)
			}
			if !model.AllCancelled(order.CartItems) {
				t.Errorf("cart items = %+v, want all cancelled", order.CartItems)
			}
		})
	}
}

func TestCancelPurchase_PartialKeepsStatus(t *testing.T) {
	ctx := context.Background()
	s, orderID := seedPlacedOrder(t)
	r := New(s, &adapter.Mock{}, testLogger())

	res, err := r.CancelPurchase(ctx, "ch-1", "po-1")
	if err != nil {
		t.Fatalf("CancelPurchase() error = %v", err)
	}
	if res.CartItems != 2 || len(res.CancelledOrders) != 0 {
		t.Errorf("result = %+v, want 2 items and no cancelled orders", res)
	}
	order, _ := s.GetOrder(ctx, orderID)
	if order.Status != model.OrderStatusAwaiting {
		t.Errorf("order status = %s, want AWAITING", order.Status)
	}
}

func TestCancelPurchase_UnknownPurchase(t *testing.T) {
	s, _ := seedPlacedOrder(t)
	r := New(s, &adapter.Mock{}, testLogger())

	res, err := r.CancelPurchase(context.Background(), "ch-1", "nope")
	if err != nil {
		t.Fatalf("CancelPurchase() error = %v", err)
	}
	if res.CartItems != 0 {
		t.Errorf("CartItems = %d, want 0", res.CartItems)
	}

	if _, err := r.CancelPurchase(context.Background(), "ch-1", ""); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("empty purchase id error = %v, want ErrInvalidRequest", err)
	}
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	s, orderID := seedPlacedOrder(t)
	r := New(s, &adapter.Mock{}, testLogger())

	res, err := r.CancelOrder(ctx, "shop-1", "1001")
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if res.CartItems != 3 {
		t.Errorf("CartItems = %d, want 3", res.CartItems)
	}
	order, _ := s.GetOrder(ctx, orderID)
	if order.Status != model.OrderStatusCancelled || !model.AllCancelled(order.CartItems) {
		t.Errorf("order = %s with items %+v, want everything cancelled", order.Status, order.CartItems)
	}

	if _, err := r.CancelOrder(ctx, "shop-1", "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing order error = %v, want ErrNotFound", err)
	}
}

func TestRecordTracking(t *testing.T) {
	ctx := context.Background()
	s, orderID := seedPlacedOrder(t)

	var pushed []*adapter.AddTrackingRequest
	mock := &adapter.Mock{
		AddTrackingFunc: func(_ context.Context, p *model.Platform, req *adapter.AddTrackingRequest) (*adapter.AddTrackingResult, error) {
			if p == nil || p.ID != "shopify" {
				t.Errorf("platform = %+v, want shopify", p)
			}
			pushed = append(pushed, req)
			return &adapter.AddTrackingResult{FulfillmentID: "f-1"}, nil
		},
	}
	r := New(s, mock, testLogger())

	if err := r.RecordTracking(ctx, "ch-1", Tracking{PurchaseID: "po-1", TrackingNumber: "1Z1", TrackingCompany: "UPS"}); err != nil {
		t.Fatalf("RecordTracking(po-1) error = %v", err)
	}
	if len(pushed) != 1 {
		t.Fatalf("addTracking called %d times, want 1", len(pushed))
	}
	if req := pushed[0]; req.OrderID != "1001" || req.Domain != "shop.example" || req.AccessToken != "shop-token" || req.TrackingNumber != "1Z1" {
		t.Errorf("addTracking request = %+v", req)
	}
	order, _ := s.GetOrder(ctx, orderID)
	if order.Status != model.OrderStatusAwaiting {
		t.Errorf("status after partial tracking = %s, want AWAITING", order.Status)
	}

	if err := r.RecordTracking(ctx, "ch-2", Tracking{PurchaseID: "po-2", TrackingNumber: "1Z2"}); err != nil {
		t.Fatalf("RecordTracking(po-2) error = %v", err)
	}
	order, _ = s.GetOrder(ctx, orderID)
	if order.Status != model.OrderStatusComplete {
		t.Errorf("status after full tracking = %s, want COMPLETE", order.Status)
	}
	for _, ci := range order.CartItems {
		if ci.TrackingNumber == "" || ci.Status != model.CartItemStatusComplete {
			t.Errorf("cart item %+v missing tracking", ci)
		}
	}
}

func TestRecordTracking_ShopFailureStillRecomputes(t *testing.T) {
	ctx := context.Background()
	s, orderID := seedPlacedOrder(t)
	mock := &adapter.Mock{
		AddTrackingFunc: func(context.Context, *model.Platform, *adapter.AddTrackingRequest) (*adapter.AddTrackingResult, error) {
			return nil, errors.New("shop down")
		},
	}
	r := New(s, mock, testLogger())

	_ = r.RecordTracking(ctx, "ch-1", Tracking{PurchaseID: "po-1", TrackingNumber: "1Z1"})
	err := r.RecordTracking(ctx, "ch-2", Tracking{PurchaseID: "po-2", TrackingNumber: "1Z2"})
	if err == nil {
		t.Fatal("RecordTracking() error = nil, want shop failure")
	}

	order, _ := s.GetOrder(ctx, orderID)
	if order.Status != model.OrderStatusComplete {
		t.Errorf("status = %s, want COMPLETE despite shop failure", order.Status)
	}
}

func TestRecordTracking_Validation(t *testing.T) {
	s, _ := seedPlacedOrder(t)
	r := New(s, &adapter.Mock{}, testLogger())
	ctx := context.Background()

	if err := r.RecordTracking(ctx, "ch-1", Tracking{PurchaseID: "po-1"}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("missing tracking number error = %v, want ErrInvalidRequest", err)
	}
	if err := r.RecordTracking(ctx, "ch-1", Tracking{PurchaseID: "unknown", TrackingNumber: "x"}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown purchase error = %v, want ErrNotFound", err)
	}
}
