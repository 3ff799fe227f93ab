// Package match maintains the owner-scoped cache that maps a set of shop
// items to the channel items fulfilling them.
package match

import (
	"context"
	"fmt"
	"log/slog"

	"order-router/internal/adapter"
	"order-router/internal/model"
	"order-router/internal/store"
)

// Engine creates, replaces, resolves and applies Matches.
type Engine struct {
	store    store.Store
	adapters adapter.Adapter
	logger   *slog.Logger
}

// New creates an engine. adapters is used for live product lookups.
func New(s store.Store, adapters adapter.Adapter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, adapters: adapters, logger: logger}
}

// loadOwnedOrder returns the order if ownerID owns it. Orders of other
// owners are reported as not found.
func (e *Engine) loadOwnedOrder(ctx context.Context, ownerID, orderID string) (*model.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != ownerID {
		return nil, fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
	}
	return order, nil
}

// MatchOrder records the order's current routing as the owner's Match for
// the order's line item set, replacing any Match with exactly that input.
//
// The existence check, delete and create are separate store calls.
// Concurrent calls for the same input set can each delete the old Match
// and each create a new one, leaving duplicates. Lookups pick the newest.
func (e *Engine) MatchOrder(ctx context.Context, ownerID, orderID string) (*model.Match, error) {
	order, err := e.loadOwnedOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.LineItems) == 0 {
		return nil, model.NewValidationError("order", "has no line items")
	}

	input := make([]model.ShopItem, 0, len(order.LineItems))
	seenInput := map[string]bool{}
	keys := make([]model.ItemKey, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		item, err := FindOrCreateShopItem(ctx, e.store, ownerID, order.ShopID, li.Key(), li.Price)
		if err != nil {
			return nil, err
		}
		keys = append(keys, li.Key())
		if !seenInput[item.ID] {
			seenInput[item.ID] = true
			input = append(input, *item)
		}
	}
	keys = model.DistinctKeys(keys)

	output := make([]model.ChannelItem, 0, len(order.CartItems))
	seenOutput := map[string]bool{}
	for _, ci := range order.CartItems {
		if ci.Status == model.CartItemStatusCancelled {
			continue
		}
		item, err := FindOrCreateChannelItem(ctx, e.store, ownerID, ci.ChannelID, ci.Key(), ci.Price)
		if err != nil {
			return nil, err
		}
		if !seenOutput[item.ID] {
			seenOutput[item.ID] = true
			output = append(output, *item)
		}
	}

	existing, err := e.exactMatches(ctx, ownerID, keys)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if err := e.store.DeleteMatch(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("replacing match %s: %w", m.ID, err)
		}
	}

	m := &model.Match{OwnerID: ownerID, Input: input, Output: output}
	if err := e.store.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}

	e.logger.Info("match recorded",
		"order_id", orderID,
		"match_id", m.ID,
		"replaced", len(existing),
		"inputs", len(input),
		"outputs", len(output),
	)
	return m, nil
}

// exactMatches returns the owner's Matches covering keys whose input set
// has exactly len(keys) items, oldest first.
func (e *Engine) exactMatches(ctx context.Context, ownerID string, keys []model.ItemKey) ([]model.Match, error) {
	candidates, err := e.store.FindMatchesCovering(ctx, ownerID, keys)
	if err != nil {
		return nil, fmt.Errorf("searching matches: %w", err)
	}
	exact := candidates[:0]
	for _, m := range candidates {
		if m.MatchesExactly(keys) {
			exact = append(exact, m)
		}
	}
	return exact, nil
}

// find returns the newest exact Match for keys or ErrNoMatchFound.
func (e *Engine) find(ctx context.Context, ownerID string, keys []model.ItemKey) (*model.Match, error) {
	keys = model.DistinctKeys(keys)
	if len(keys) == 0 {
		return nil, model.NewValidationError("input", "at least one item is required")
	}
	exact, err := e.exactMatches(ctx, ownerID, keys)
	if err != nil {
		return nil, err
	}
	if len(exact) == 0 {
		return nil, model.ErrNoMatchFound
	}
	m := exact[len(exact)-1]
	return &m, nil
}
