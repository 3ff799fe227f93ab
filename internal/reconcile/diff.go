// Package reconcile brings stored order state in line with what a Match or
// a platform event says it should be. Status is always recomputed from the
// full cart item set, so repeated or reordered events converge.
package reconcile

import "github.com/shopspring/decimal"

// CartDiff describes the mutations needed to bring an order's cart items
// to a desired routing. Apply in order: Remove, Update, Add.
type CartDiff struct {
	ToAdd    []DesiredItem // routed lines the order lacks
	ToRemove []CurrentItem // lines no longer routed
	ToUpdate []ItemToUpdate
}

// ItemToUpdate is a line present on both sides with a different quantity.
type ItemToUpdate struct {
	Current     CurrentItem
	NewQuantity int
	NewPrice    decimal.Decimal
}

// IsEmpty returns true if no cart item changes are needed.
func (d *CartDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// CurrentItem is a cart item already stored on the order.
type CurrentItem struct {
	CartItemID string
	ChannelID  string
	ProductID  string
	VariantID  string
	Quantity   int
	Placed     bool // has a purchase; never removed or resized
}

// DesiredItem is one routed line from a Match output.
type DesiredItem struct {
	ChannelID string
	ProductID string
	VariantID string
	Quantity  int
	Price     decimal.Decimal
}

// DiffCartItems computes the delta between current and desired cart items.
// Items are keyed by channel, product and variant; quantity is the value.
// Placed items are never removed or resized. Output follows input order.
func DiffCartItems(current []CurrentItem, desired []DesiredItem) *CartDiff {
	diff := &CartDiff{}

	currentByKey := make(map[string]CurrentItem, len(current))
	for _, item := range current {
		key := itemKey(item.ChannelID, item.ProductID, item.VariantID)
		if prev, ok := currentByKey[key]; ok && prev.Placed {
			continue
		}
		currentByKey[key] = item
	}

	desiredByKey := make(map[string]DesiredItem, len(desired))
	for _, item := range desired {
		desiredByKey[itemKey(item.ChannelID, item.ProductID, item.VariantID)] = item
	}

	added := map[string]bool{}
	for _, want := range desired {
		key := itemKey(want.ChannelID, want.ProductID, want.VariantID)
		if added[key] {
			continue
		}
		added[key] = true
		have, exists := currentByKey[key]
		switch {
		case !exists:
			diff.ToAdd = append(diff.ToAdd, desiredByKey[key])
		case have.Quantity != desiredByKey[key].Quantity && !have.Placed:
			diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
				Current:     have,
				NewQuantity: desiredByKey[key].Quantity,
				NewPrice:    desiredByKey[key].Price,
			})
		}
	}

	for _, have := range current {
		key := itemKey(have.ChannelID, have.ProductID, have.VariantID)
		if _, exists := desiredByKey[key]; !exists && !have.Placed {
			diff.ToRemove = append(diff.ToRemove, have)
		}
	}

	return diff
}

// itemKey creates a composite key for matching items.
func itemKey(channelID, productID, variantID string) string {
	return channelID + "|" + productID + ":" + variantID
}
