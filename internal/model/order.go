package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "PENDING"
	OrderStatusInProcess   OrderStatus = "INPROCESS"
	OrderStatusAwaiting    OrderStatus = "AWAITING"
	OrderStatusBackordered OrderStatus = "BACKORDERED"
	OrderStatusComplete    OrderStatus = "COMPLETE"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
)

// CartItemStatus is the state of one routing attempt.
type CartItemStatus string

const (
	CartItemStatusPending   CartItemStatus = "PENDING"
	CartItemStatusInProcess CartItemStatus = "INPROCESS"
	CartItemStatusComplete  CartItemStatus = "COMPLETE"
	CartItemStatusCancelled CartItemStatus = "CANCELLED"
)

// Address is the shipping destination sent to channels.
type Address struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	StreetAddress1 string `json:"streetAddress1,omitempty"`
	StreetAddress2 string `json:"streetAddress2,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	Zip            string `json:"zip,omitempty"`
	Country        string `json:"country,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// Order is one customer purchase on a Shop.
type Order struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	ShopID        string          `json:"shopId"`
	OrderID       string          `json:"orderId"`
	OrderName     string          `json:"orderName,omitempty"`
	Email         string          `json:"email,omitempty"`
	Address       Address         `json:"address"`
	Currency      string          `json:"currency,omitempty"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	SubTotalPrice decimal.Decimal `json:"subTotalPrice"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	TotalTax      decimal.Decimal `json:"totalTax"`
	Status        OrderStatus     `json:"status"`
	LineItems     []LineItem      `json:"lineItems,omitempty"`
	CartItems     []CartItem      `json:"cartItems,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// LineItem is a shop-side order line.
type LineItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Key returns the identity used for dedup and Match lookup.
func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, VariantID: li.VariantID, Quantity: li.Quantity}
}

// CartItem is one order line's routing attempt against a Channel.
type CartItem struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"orderId"`
	ChannelID       string          `json:"channelId"`
	Name            string          `json:"name,omitempty"`
	Image           string          `json:"image,omitempty"`
	ProductID       string          `json:"productId"`
	VariantID       string          `json:"variantId"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	PurchaseID      string          `json:"purchaseId,omitempty"`
	URL             string          `json:"url,omitempty"`
	Error           string          `json:"error,omitempty"`
	Status          CartItemStatus  `json:"status"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	TrackingCompany string          `json:"trackingCompany,omitempty"`
	Channel         *Channel        `json:"channel,omitempty"`
}

// Key returns the identity used for ChannelItem dedup.
func (ci CartItem) Key() ItemKey {
	return ItemKey{ProductID: ci.ProductID, VariantID: ci.VariantID, Quantity: ci.Quantity}
}

// Placeable reports whether the item still needs a purchase.
func (ci CartItem) Placeable() bool {
	return ci.Status == CartItemStatusPending && ci.PurchaseID == ""
}

// AllCancelled reports whether items is non-empty and every item is CANCELLED.
func AllCancelled(items []CartItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Status != CartItemStatusCancelled {
			return false
		}
	}
	return true
}

// DeriveOrderStatus recomputes an order's status from the full set of its
// cart items. It is a pure function of current state so repeated or
// reordered calls converge on the same answer.
//
//   - no items: status unchanged
//   - every item cancelled: CANCELLED
//   - any open item carrying an error: PENDING (still actionable)
//   - every open item placed and tracked: COMPLETE
//   - every open item placed: AWAITING
//   - some open items placed: INPROCESS
func DeriveOrderStatus(current OrderStatus, items []CartItem) OrderStatus {
	if current == OrderStatusCancelled || len(items) == 0 {
		return current
	}

	var open, placed, tracked int
	for _, item := range items {
		if item.Status == CartItemStatusCancelled {
			continue
		}
		open++
		if item.Error != "" {
			return OrderStatusPending
		}
		if item.PurchaseID != "" {
			placed++
		}
		if item.TrackingNumber != "" || item.Status == CartItemStatusComplete {
			tracked++
		}
	}

	switch {
	case open == 0:
		return OrderStatusCancelled
	case placed == open && tracked == open:
		return OrderStatusComplete
	case placed == open:
		return OrderStatusAwaiting
	case placed > 0:
		return OrderStatusInProcess
	default:
		return OrderStatusPending
	}
}
