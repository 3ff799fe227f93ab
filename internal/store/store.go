// Package store defines the record store the router depends on. Every
// method is a single atomic operation; multi-record consistency comes from
// recomputing derived state, not from transactions spanning calls.
//
// Lookups that find nothing return an error wrapping model.ErrNotFound.
package store

import (
	"context"

	"order-router/internal/model"
)

// PlatformStore reads platform and connection records.
type PlatformStore interface {
	GetPlatform(ctx context.Context, id string) (*model.Platform, error)

	// GetShop and GetChannel return the connection with Platform loaded.
	GetShop(ctx context.Context, id string) (*model.Shop, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
}

// OrderStore reads and writes orders and their line items.
type OrderStore interface {
	// GetOrder returns the order with LineItems and CartItems loaded.
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	FindOrderByExternalID(ctx context.Context, shopID, externalID string) (*model.Order, error)

	// CreateOrder inserts the order and its line items, assigning ids and
	// timestamps where missing.
	CreateOrder(ctx context.Context, order *model.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
}

// CartItemStore reads and writes routing attempts.
type CartItemStore interface {
	ListCartItemsByOrder(ctx context.Context, orderID string) ([]model.CartItem, error)
	FindCartItemsByPurchase(ctx context.Context, channelID, purchaseID string) ([]model.CartItem, error)
	CreateCartItem(ctx context.Context, item *model.CartItem) error

	// UpdateCartItem overwrites the mutable fields: purchase id, url,
	// error, status and tracking.
	UpdateCartItem(ctx context.Context, item *model.CartItem) error
}

// ItemStore holds the deduplicated shop and channel tuples.
//
// Create methods are idempotent on the item key: if a row with the same
// owner, connection and key already exists, item is filled from it.
type ItemStore interface {
	FindShopItem(ctx context.Context, ownerID, shopID string, key model.ItemKey) (*model.ShopItem, error)
	CreateShopItem(ctx context.Context, item *model.ShopItem) error
	FindChannelItem(ctx context.Context, ownerID, channelID string, key model.ItemKey) (*model.ChannelItem, error)
	CreateChannelItem(ctx context.Context, item *model.ChannelItem) error
}

// MatchStore holds cached routings.
type MatchStore interface {
	// FindMatchesCovering returns the owner's matches whose input contains
	// an item equal to every key, oldest first.
	FindMatchesCovering(ctx context.Context, ownerID string, keys []model.ItemKey) ([]model.Match, error)
	CreateMatch(ctx context.Context, m *model.Match) error
	DeleteMatch(ctx context.Context, id string) error
}

// Store aggregates every record interface.
type Store interface {
	PlatformStore
	OrderStore
	CartItemStore
	ItemStore
	MatchStore
}
