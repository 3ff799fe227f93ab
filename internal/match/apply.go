package match

import (
	"context"
	"fmt"

	"order-router/internal/model"
	"order-router/internal/reconcile"
)

// ApplyResult summarizes what ApplyMatch changed.
type ApplyResult struct {
	MatchID   string           `json:"matchId"`
	Added     int              `json:"added"`
	Removed   int              `json:"removed"`
	Updated   int              `json:"updated"`
	CartItems []model.CartItem `json:"cartItems"`
}

// ApplyMatch binds the owner's cached Match for the order's line items to
// the order as PENDING cart items. Existing unplaced cart items that the
// Match no longer routes are cancelled; placed items are left alone.
func (e *Engine) ApplyMatch(ctx context.Context, ownerID, orderID string) (*ApplyResult, error) {
	order, err := e.loadOwnedOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderStatusCancelled {
		return nil, model.NewValidationError("order", "is cancelled")
	}

	keys := make([]model.ItemKey, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		keys = append(keys, li.Key())
	}
	m, err := e.find(ctx, ownerID, keys)
	if err != nil {
		return nil, err
	}

	current := make([]reconcile.CurrentItem, 0, len(order.CartItems))
	for _, ci := range order.CartItems {
		if ci.Status == model.CartItemStatusCancelled {
			continue
		}
		current = append(current, reconcile.CurrentItem{
			CartItemID: ci.ID,
			ChannelID:  ci.ChannelID,
			ProductID:  ci.ProductID,
			VariantID:  ci.VariantID,
			Quantity:   ci.Quantity,
			Placed:     !ci.Placeable(),
		})
	}
	desired := make([]reconcile.DesiredItem, 0, len(m.Output))
	for _, out := range m.Output {
		desired = append(desired, reconcile.DesiredItem{
			ChannelID: out.ChannelID,
			ProductID: out.ProductID,
			VariantID: out.VariantID,
			Quantity:  out.Quantity,
			Price:     out.Price,
		})
	}

	diff := reconcile.DiffCartItems(current, desired)
	result := &ApplyResult{MatchID: m.ID}

	for _, rm := range diff.ToRemove {
		if err := e.cancelCartItem(ctx, rm.CartItemID); err != nil {
			return nil, err
		}
		result.Removed++
	}
	for _, up := range diff.ToUpdate {
		if err := e.cancelCartItem(ctx, up.Current.CartItemID); err != nil {
			return nil, err
		}
		if err := e.addCartItem(ctx, orderID, reconcile.DesiredItem{
			ChannelID: up.Current.ChannelID,
			ProductID: up.Current.ProductID,
			VariantID: up.Current.VariantID,
			Quantity:  up.NewQuantity,
			Price:     up.NewPrice,
		}); err != nil {
			return nil, err
		}
		result.Updated++
	}
	for _, add := range diff.ToAdd {
		if err := e.addCartItem(ctx, orderID, add); err != nil {
			return nil, err
		}
		result.Added++
	}

	items, err := e.store.ListCartItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.CartItems = items

	if !diff.IsEmpty() {
		status := model.DeriveOrderStatus(order.Status, items)
		if status != order.Status {
			if err := e.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
				return nil, err
			}
		}
	}

	e.logger.Info("match applied",
		"order_id", orderID,
		"match_id", m.ID,
		"added", result.Added,
		"removed", result.Removed,
		"updated", result.Updated,
	)
	return result, nil
}

func (e *Engine) cancelCartItem(ctx context.Context, id string) error {
	if err := e.store.UpdateCartItem(ctx, &model.CartItem{ID: id, Status: model.CartItemStatusCancelled}); err != nil {
		return fmt.Errorf("cancelling cart item %s: %w", id, err)
	}
	return nil
}

func (e *Engine) addCartItem(ctx context.Context, orderID string, d reconcile.DesiredItem) error {
	item := &model.CartItem{
		OrderID:   orderID,
		ChannelID: d.ChannelID,
		ProductID: d.ProductID,
		VariantID: d.VariantID,
		Quantity:  d.Quantity,
		Price:     d.Price,
		Status:    model.CartItemStatusPending,
	}
	if err := e.store.CreateCartItem(ctx, item); err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}
