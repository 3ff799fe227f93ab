package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"order-router/internal/adapter"
	"order-router/internal/model"
	"order-router/internal/store"
)

// Reconciler applies platform events to stored orders.
type Reconciler struct {
	store    store.Store
	adapters adapter.Adapter
	logger   *slog.Logger
}

// New creates a reconciler. adapters is used to push tracking to shops.
func New(s store.Store, adapters adapter.Adapter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, adapters: adapters, logger: logger}
}

// CancelResult reports what a cancellation touched.
type CancelResult struct {
	CartItems       int      `json:"cartItems"`
	CancelledOrders []string `json:"cancelledOrders,omitempty"`
}

// CancelPurchase marks every cart item of the purchase CANCELLED, then
// cancels each affected order whose cart items are now all cancelled.
// Orders that still have open items keep their status.
func (r *Reconciler) CancelPurchase(ctx context.Context, channelID, purchaseID string) (*CancelResult, error) {
	if purchaseID == "" {
		return nil, model.NewValidationError("purchaseId", "is required")
	}
	items, err := r.store.FindCartItemsByPurchase(ctx, channelID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("finding cart items: %w", err)
	}

	res := &CancelResult{}
	var orderIDs []string
	seen := map[string]bool{}
	for _, item := range items {
		if !seen[item.OrderID] {
			seen[item.OrderID] = true
			orderIDs = append(orderIDs, item.OrderID)
		}
		if item.Status == model.CartItemStatusCancelled {
			continue
		}
		item.Status = model.CartItemStatusCancelled
		if err := r.store.UpdateCartItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("cancelling cart item %s: %w", item.ID, err)
		}
		res.CartItems++
	}

	for _, orderID := range orderIDs {
		cancelled, err := r.cancelIfEmpty(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if cancelled {
			res.CancelledOrders = append(res.CancelledOrders, orderID)
		}
	}

	r.logger.Info("purchase cancelled",
		"channel_id", channelID,
		"purchase_id", purchaseID,
		"cart_items", res.CartItems,
		"orders_cancelled", len(res.CancelledOrders),
	)
	return res, nil
}

// cancelIfEmpty reloads the order's cart items and cancels the order when
// none remain open.
func (r *Reconciler) cancelIfEmpty(ctx context.Context, orderID string) (bool, error) {
	items, err := r.store.ListCartItemsByOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("listing cart items for order %s: %w", orderID, err)
	}
	if !model.AllCancelled(items) {
		return false, nil
	}
	if err := r.store.UpdateOrderStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
		return false, fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return true, nil
}

// CancelOrder cancels a shop order and every cart item still open on it.
func (r *Reconciler) CancelOrder(ctx context.Context, shopID, externalOrderID string) (*CancelResult, error) {
	order, err := r.store.FindOrderByExternalID(ctx, shopID, externalOrderID)
	if err != nil {
		return nil, err
	}

	res := &CancelResult{}
	for _, item := range order.CartItems {
		if item.Status == model.CartItemStatusCancelled {
			continue
		}
		item.Status = model.CartItemStatusCancelled
		if err := r.store.UpdateCartItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("cancelling cart item %s: %w", item.ID, err)
		}
		res.CartItems++
	}
	if order.Status != model.OrderStatusCancelled {
		if err := r.store.UpdateOrderStatus(ctx, order.ID, model.OrderStatusCancelled); err != nil {
			return nil, fmt.Errorf("cancelling order %s: %w", order.ID, err)
		}
	}
	res.CancelledOrders = []string{order.ID}

	r.logger.Info("shop order cancelled",
		"shop_id", shopID,
		"order_id", order.ID,
		"cart_items", res.CartItems,
	)
	return res, nil
}

// Tracking is the canonical body of a channel tracking webhook.
type Tracking struct {
	PurchaseID      string `json:"purchaseId"`
	TrackingNumber  string `json:"trackingNumber"`
	TrackingCompany string `json:"trackingCompany,omitempty"`
}

// RecordTracking stores tracking on the purchase's cart items, pushes it
// to each order's shop and recomputes the order status. A shop that
// cannot take tracking does not block the status update.
func (r *Reconciler) RecordTracking(ctx context.Context, channelID string, t Tracking) error {
	if t.PurchaseID == "" || t.TrackingNumber == "" {
		return model.NewValidationError("tracking", "purchaseId and trackingNumber are required")
	}
	items, err := r.store.FindCartItemsByPurchase(ctx, channelID, t.PurchaseID)
	if err != nil {
		return fmt.Errorf("finding cart items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("purchase %s on channel %s: %w", t.PurchaseID, channelID, model.ErrNotFound)
	}

	var orderIDs []string
	seen := map[string]bool{}
	for _, item := range items {
		if !seen[item.OrderID] {
			seen[item.OrderID] = true
			orderIDs = append(orderIDs, item.OrderID)
		}
		if item.Status == model.CartItemStatusCancelled {
			continue
		}
		item.TrackingNumber = t.TrackingNumber
		item.TrackingCompany = t.TrackingCompany
		item.Status = model.CartItemStatusComplete
		if err := r.store.UpdateCartItem(ctx, &item); err != nil {
			return fmt.Errorf("saving tracking on cart item %s: %w", item.ID, err)
		}
	}

	var errs []error
	for _, orderID := range orderIDs {
		if err := r.pushTracking(ctx, orderID, t); err != nil {
			errs = append(errs, err)
		}
		if _, err := r.Recompute(ctx, orderID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) pushTracking(ctx context.Context, orderID string, t Tracking) error {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	shop, err := r.store.GetShop(ctx, order.ShopID)
	if err != nil {
		return fmt.Errorf("loading shop for order %s: %w", orderID, err)
	}

	res, err := r.adapters.AddTracking(ctx, shop.Platform, &adapter.AddTrackingRequest{
		Domain:          shop.Domain,
		AccessToken:     shop.AccessToken,
		OrderID:         order.OrderID,
		TrackingNumber:  t.TrackingNumber,
		TrackingCompany: t.TrackingCompany,
	})
	if errors.Is(err, model.ErrAdapterFunctionNotFound) {
		r.logger.Debug("shop does not accept tracking", "shop_id", shop.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pushing tracking for order %s: %w", orderID, err)
	}

	var fulfillmentID string
	if res != nil {
		fulfillmentID = res.FulfillmentID
	}
	r.logger.Info("tracking pushed to shop",
		"order_id", orderID,
		"shop_id", shop.ID,
		"fulfillment_id", fulfillmentID,
	)
	return nil
}

// Recompute derives the order's status from all of its cart items and
// saves it when it changed.
func (r *Reconciler) Recompute(ctx context.Context, orderID string) (model.OrderStatus, error) {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	status := model.DeriveOrderStatus(order.Status, order.CartItems)
	if status == order.Status {
		return status, nil
	}
	if err := r.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return order.Status, fmt.Errorf("updating order %s status: %w", orderID, err)
	}
	r.logger.Debug("order status recomputed",
		"order_id", orderID,
		"from", order.Status,
		"to", status,
	)
	return status, nil
}
