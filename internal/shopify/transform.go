package shopify

import (
	"encoding/json"
	"strconv"
	"strings"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

func toIncomingOrder(o *orderPayload, raw json.RawMessage) *adapter.IncomingOrder {
	in := &adapter.IncomingOrder{
		OrderID:       strconv.FormatInt(o.ID, 10),
		OrderName:     o.Name,
		Email:         firstNonEmpty(o.Email, o.ContactEmail),
		Currency:      o.Currency,
		TotalPrice:    o.TotalPrice,
		SubTotalPrice: o.SubtotalPrice,
		TotalDiscount: o.TotalDiscounts,
		TotalTax:      o.TotalTax,
		CreatedAt:     o.CreatedAt,
		Raw:           raw,
	}
	if a := o.ShippingAddress; a != nil {
		in.Address = model.Address{
			FirstName:      a.FirstName,
			LastName:       a.LastName,
			StreetAddress1: a.Address1,
			StreetAddress2: a.Address2,
			City:           a.City,
			State:          a.Province,
			Zip:            a.Zip,
			Country:        firstNonEmpty(a.CountryCode, a.Country),
			Phone:          a.Phone,
		}
	}
	for _, li := range o.LineItems {
		in.LineItems = append(in.LineItems, adapter.IncomingLine{
			Name:      firstNonEmpty(li.Name, li.Title),
			ProductID: formatID(li.ProductID),
			VariantID: formatID(li.VariantID),
			Quantity:  li.Quantity,
			Price:     li.Price,
		})
	}
	return in
}

// formatID renders a numeric id, leaving absent ids (custom lines) empty.
func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func toProduct(v *variantNode) adapter.Product {
	p := adapter.Product{
		Title:            v.Product.Title,
		ProductID:        legacyID(v.Product.ID),
		VariantID:        legacyID(v.ID),
		Price:            v.Price,
		AvailableForSale: v.AvailableForSale,
		Inventory:        v.InventoryQuantity,
		ProductLink:      v.Product.OnlineStoreURL,
	}
	if v.Title != "" && v.Title != "Default Title" {
		p.Title += " - " + v.Title
	}
	switch {
	case v.Image != nil:
		p.Image = v.Image.URL
	case v.Product.FeaturedImage != nil:
		p.Image = v.Product.FeaturedImage.URL
	}
	return p
}

func toWebhook(n *webhookNode) adapter.Webhook {
	return adapter.Webhook{
		ID:        legacyID(n.ID),
		Topic:     n.Topic,
		Endpoint:  n.Endpoint.CallbackURL,
		CreatedAt: n.CreatedAt,
	}
}

// topicEnum converts "orders/create" into ORDERS_CREATE.
func topicEnum(topic string) string {
	r := strings.NewReplacer("/", "_", ".", "_", "-", "_")
	return strings.ToUpper(r.Replace(topic))
}
