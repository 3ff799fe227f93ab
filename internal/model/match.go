package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemKey is the (product, variant, quantity) identity shared by line
// items, cart items, and their deduplicated counterparts.
type ItemKey struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// DistinctKeys drops repeated keys while keeping first-seen order.
func DistinctKeys(keys []ItemKey) []ItemKey {
	seen := make(map[ItemKey]bool, len(keys))
	out := make([]ItemKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// ShopItem is a deduplicated shop-side tuple used as Match input.
type ShopItem struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	ShopID    string          `json:"shopId"`
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Key returns the item's (product, variant, quantity) identity.
func (s ShopItem) Key() ItemKey {
	return ItemKey{ProductID: s.ProductID, VariantID: s.VariantID, Quantity: s.Quantity}
}

// ChannelItem is a deduplicated channel-side tuple used as Match output.
type ChannelItem struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	ChannelID string          `json:"channelId"`
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Key returns the item's (product, variant, quantity) identity.
func (c ChannelItem) Key() ItemKey {
	return ItemKey{ProductID: c.ProductID, VariantID: c.VariantID, Quantity: c.Quantity}
}

// Match caches the routing of a set of shop items to a set of channel
// items for one owner. Matches are replaced wholesale, never edited.
type Match struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"ownerId"`
	Input     []ShopItem    `json:"input"`
	Output    []ChannelItem `json:"output"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Covers reports whether every key has at least one input item equal to it.
func (m *Match) Covers(keys []ItemKey) bool {
	for _, k := range keys {
		found := false
		for _, in := range m.Input {
			if in.Key() == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MatchesExactly applies the covering rule plus the exact-cardinality
// tie-break: the input set must be the same size as keys.
func (m *Match) MatchesExactly(keys []ItemKey) bool {
	return len(m.Input) == len(keys) && m.Covers(keys)
}
