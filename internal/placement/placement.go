// Package placement places purchases on channels for batches of orders.
// Each order's placeable cart items are grouped by channel and every group
// becomes one createPurchase call. A failing group marks only its own items.
package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"order-router/internal/adapter"
	"order-router/internal/model"
	"order-router/internal/store"
)

// DefaultConcurrency bounds how many orders are placed at once.
const DefaultConcurrency = 8

// Purchaser is the slice of the adapter contract placement needs.
type Purchaser interface {
	CreatePurchase(ctx context.Context, p *model.Platform, req *adapter.CreatePurchaseRequest) (*adapter.PurchaseResult, error)
}

// GroupOutcome is the result of one channel group.
type GroupOutcome struct {
	ChannelID   string   `json:"channelId"`
	CartItemIDs []string `json:"cartItemIds"`
	PurchaseID  string   `json:"purchaseId,omitempty"`
	URL         string   `json:"url,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// OrderOutcome is the result for one order of the batch.
type OrderOutcome struct {
	OrderID   string            `json:"orderId"`
	Status    model.OrderStatus `json:"status,omitempty"`
	Groups    []GroupOutcome    `json:"groups"`
	CartItems []model.CartItem  `json:"cartItems,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Orchestrator runs placements.
type Orchestrator struct {
	store       store.Store
	purchaser   Purchaser
	logger      *slog.Logger
	concurrency int
}

// New creates an orchestrator. concurrency <= 0 uses DefaultConcurrency.
func New(s store.Store, purchaser Purchaser, logger *slog.Logger, concurrency int) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{store: s, purchaser: purchaser, logger: logger, concurrency: concurrency}
}

// PlaceOrders places every order in orderIDs. Orders run concurrently up to
// the configured limit; outcomes come back in input order. A failure on one
// order or group never stops the others, so the returned error is only for
// an unusable request.
func (o *Orchestrator) PlaceOrders(ctx context.Context, orderIDs []string) ([]OrderOutcome, error) {
	return o.place(ctx, "", orderIDs)
}

// PlaceOwnedOrders is PlaceOrders restricted to orders of ownerID. Orders
// of another owner are reported as not found.
func (o *Orchestrator) PlaceOwnedOrders(ctx context.Context, ownerID string, orderIDs []string) ([]OrderOutcome, error) {
	if ownerID == "" {
		return nil, model.NewValidationError("owner", "is required")
	}
	return o.place(ctx, ownerID, orderIDs)
}

func (o *Orchestrator) place(ctx context.Context, ownerID string, orderIDs []string) ([]OrderOutcome, error) {
	if len(orderIDs) == 0 {
		return nil, model.NewValidationError("orderIds", "at least one order id is required")
	}

	outcomes := make([]OrderOutcome, len(orderIDs))
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for i, id := range orderIDs {
		g.Go(func() error {
			outcomes[i] = o.placeOrder(ctx, ownerID, id)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

type group struct {
	channelID string
	items     []model.CartItem
}

func (o *Orchestrator) placeOrder(ctx context.Context, ownerID, orderID string) OrderOutcome {
	out := OrderOutcome{OrderID: orderID, Groups: []GroupOutcome{}}
	logger := o.logger.With("order_id", orderID)

	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		logger.Warn("placement skipped", "error", err)
		out.Error = err.Error()
		return out
	}
	if ownerID != "" && order.OwnerID != ownerID {
		logger.Warn("placement skipped", "error", "order belongs to another owner")
		out.Error = model.ErrNotFound.Error()
		return out
	}
	if order.Status == model.OrderStatusCancelled {
		out.Status = order.Status
		out.Error = "order is cancelled"
		return out
	}

	groups := groupByChannel(order.CartItems)
	results := make([]GroupOutcome, len(groups))
	var wg sync.WaitGroup
	for i, grp := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.placeGroup(ctx, order, grp)
		}()
	}
	wg.Wait()
	out.Groups = results

	// Recompute from a fresh read so concurrent webhook updates are included.
	items, err := o.store.ListCartItemsByOrder(ctx, orderID)
	if err != nil {
		out.Error = fmt.Sprintf("reloading cart items: %v", err)
		return out
	}
	out.CartItems = items

	current, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		out.Error = fmt.Sprintf("reloading order: %v", err)
		return out
	}
	status := model.DeriveOrderStatus(current.Status, items)
	if status != current.Status {
		if err := o.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
			out.Error = fmt.Sprintf("updating status: %v", err)
			out.Status = current.Status
			return out
		}
	}
	out.Status = status

	logger.Info("order placed",
		"groups", len(results),
		"status", status,
	)
	return out
}

// groupByChannel collects placeable items per channel, sorted by channel.
func groupByChannel(items []model.CartItem) []group {
	byChannel := map[string][]model.CartItem{}
	for _, item := range items {
		if !item.Placeable() {
			continue
		}
		byChannel[item.ChannelID] = append(byChannel[item.ChannelID], item)
	}
	groups := make([]group, 0, len(byChannel))
	for channelID, items := range byChannel {
		groups = append(groups, group{channelID: channelID, items: items})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].channelID < groups[j].channelID })
	return groups
}

func (o *Orchestrator) placeGroup(ctx context.Context, order *model.Order, grp group) GroupOutcome {
	res := GroupOutcome{ChannelID: grp.channelID}
	for _, item := range grp.items {
		res.CartItemIDs = append(res.CartItemIDs, item.ID)
	}

	purchase, err := o.purchase(ctx, order, grp)
	if err != nil {
		failure := &model.PartialPlacementFailure{
			OrderID:     order.ID,
			ChannelID:   grp.channelID,
			CartItemIDs: res.CartItemIDs,
			Cause:       err,
		}
		o.logger.Warn("channel group placement failed",
			"order_id", order.ID,
			"channel_id", grp.channelID,
			"error", failure,
		)
		res.Error = errorMessage(err)
		o.record(ctx, order.ID, grp.items, func(ci *model.CartItem) {
			ci.Error = res.Error
			ci.PurchaseID = ""
			ci.URL = ""
		})
		return res
	}

	res.PurchaseID = purchase.PurchaseID
	res.URL = purchase.URL
	o.record(ctx, order.ID, grp.items, func(ci *model.CartItem) {
		ci.PurchaseID = purchase.PurchaseID
		ci.URL = purchase.URL
		ci.Error = ""
		if ci.Status == model.CartItemStatusPending {
			ci.Status = model.CartItemStatusInProcess
		}
	})
	return res
}

func (o *Orchestrator) purchase(ctx context.Context, order *model.Order, grp group) (*adapter.PurchaseResult, error) {
	channel, err := o.store.GetChannel(ctx, grp.channelID)
	if err != nil {
		return nil, fmt.Errorf("loading channel: %w", err)
	}

	items := make([]model.CartItem, len(grp.items))
	for i, item := range grp.items {
		item.Channel = channel
		items[i] = item
	}

	result, err := o.purchaser.CreatePurchase(ctx, channel.Platform, &adapter.CreatePurchaseRequest{
		Domain:      channel.Domain,
		AccessToken: channel.AccessToken,
		CartItems:   items,
		Email:       order.Email,
		Address:     order.Address,
		OrderID:     order.ID,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.PurchaseID == "" {
		return nil, errors.New("channel returned no purchase id")
	}
	return result, nil
}

// record applies mutate to the stored version of each item and persists
// it. Items are re-read first so a cancellation or tracking update that
// landed during the channel call survives. Store errors are logged; the
// placement outcome already reflects the channel's answer.
func (o *Orchestrator) record(ctx context.Context, orderID string, items []model.CartItem, mutate func(*model.CartItem)) {
	stored := map[string]model.CartItem{}
	current, err := o.store.ListCartItemsByOrder(ctx, orderID)
	if err != nil {
		o.logger.Error("reloading cart items",
			"order_id", orderID,
			"error", err,
		)
		return
	}
	for _, ci := range current {
		stored[ci.ID] = ci
	}

	for _, snapshot := range items {
		item, ok := stored[snapshot.ID]
		if !ok {
			o.logger.Warn("cart item removed during placement", "cart_item_id", snapshot.ID)
			continue
		}
		mutate(&item)
		if err := o.store.UpdateCartItem(ctx, &item); err != nil {
			o.logger.Error("saving cart item",
				"cart_item_id", item.ID,
				"error", err,
			)
		}
	}
}

// errorMessage unwraps the dispatcher's context so the stored message
// names the channel's own complaint.
func errorMessage(err error) string {
	var execErr *model.AdapterExecutionError
	if errors.As(err, &execErr) && execErr.Cause != nil {
		return execErr.Cause.Error()
	}
	return err.Error()
}
