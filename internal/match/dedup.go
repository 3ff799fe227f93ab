package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"order-router/internal/model"
	"order-router/internal/store"
)

// FindOrCreateShopItem returns the ShopItem for (owner, shop, key), creating
// it when absent. Existing rows are never modified; price is only set on
// creation.
//
// The find and the create are separate store calls. Two callers racing on
// the same key both fall through to create, and the store's create is
// idempotent on the key, so both end up with the same row.
func FindOrCreateShopItem(ctx context.Context, s store.ItemStore, ownerID, shopID string, key model.ItemKey, price decimal.Decimal) (*model.ShopItem, error) {
	existing, err := s.FindShopItem(ctx, ownerID, shopID, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("finding shop item: %w", err)
	}

	item := &model.ShopItem{
		OwnerID:   ownerID,
		ShopID:    shopID,
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Quantity:  key.Quantity,
		Price:     price,
	}
	if err := s.CreateShopItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating shop item: %w", err)
	}
	return item, nil
}

// FindOrCreateChannelItem is FindOrCreateShopItem for the channel side.
func FindOrCreateChannelItem(ctx context.Context, s store.ItemStore, ownerID, channelID string, key model.ItemKey, price decimal.Decimal) (*model.ChannelItem, error) {
	existing, err := s.FindChannelItem(ctx, ownerID, channelID, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("finding channel item: %w", err)
	}

	item := &model.ChannelItem{
		OwnerID:   ownerID,
		ChannelID: channelID,
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Quantity:  key.Quantity,
		Price:     price,
	}
	if err := s.CreateChannelItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating channel item: %w", err)
	}
	return item, nil
}
