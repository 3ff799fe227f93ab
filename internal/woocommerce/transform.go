package woocommerce

import (
	"strconv"
	"strings"
	"time"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// wooTimeLayout is the zone-less layout of *_gmt fields.
const wooTimeLayout = "2006-01-02T15:04:05"

func inStock(status string, purchasable bool) bool {
	return purchasable && (status == "instock" || status == "onbackorder")
}

// productFromWoo converts a simple product. Simple products have no
// variant id.
func productFromWoo(p *WooProduct) adapter.Product {
	out := adapter.Product{
		Title:            p.Name,
		ProductID:        strconv.Itoa(p.ID),
		Price:            model.ParsePrice(p.Price),
		AvailableForSale: inStock(p.StockStatus, p.Purchasable),
		Inventory:        p.StockQuantity,
		ProductLink:      p.Permalink,
	}
	if len(p.Images) > 0 {
		out.Image = p.Images[0].Src
	}
	return out
}

func variationFromWoo(parent *WooProduct, v *WooVariation) adapter.Product {
	out := productFromWoo(parent)
	out.VariantID = strconv.Itoa(v.ID)
	out.Price = model.ParsePrice(v.Price)
	out.AvailableForSale = inStock(v.StockStatus, v.Purchasable)
	out.Inventory = v.StockQuantity
	if v.Permalink != "" {
		out.ProductLink = v.Permalink
	}
	if v.Image != nil && v.Image.Src != "" {
		out.Image = v.Image.Src
	}
	if len(v.Attributes) > 0 {
		opts := make([]string, 0, len(v.Attributes))
		for _, attr := range v.Attributes {
			opts = append(opts, attr.Option)
		}
		out.Title += " - " + strings.Join(opts, " / ")
	}
	return out
}

func addressToWoo(a model.Address, email string) WooAddress {
	return WooAddress{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.StreetAddress1,
		Address2:  a.StreetAddress2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Zip,
		Country:   a.Country,
		Email:     email,
		Phone:     a.Phone,
	}
}

// orderRequest builds the order body for one channel group. Product and
// variant ids must be the store's numeric ids.
func orderRequest(req *adapter.CreatePurchaseRequest) (*WooOrderRequest, error) {
	if len(req.CartItems) == 0 {
		return nil, model.NewValidationError("cartItems", "must not be empty")
	}
	order := &WooOrderRequest{
		Billing:  addressToWoo(req.Address, req.Email),
		Shipping: addressToWoo(req.Address, ""),
		MetaData: []WooMeta{{Key: orderMetaKey, Value: req.OrderID}},
	}
	for _, item := range req.CartItems {
		productID, err := strconv.Atoi(item.ProductID)
		if err != nil || productID <= 0 {
			return nil, model.NewValidationError("productId", "not a WooCommerce product id: "+item.ProductID)
		}
		line := WooLineItemInput{ProductID: productID, Quantity: item.Quantity}
		if item.VariantID != "" && item.VariantID != item.ProductID {
			variationID, err := strconv.Atoi(item.VariantID)
			if err != nil || variationID <= 0 {
				return nil, model.NewValidationError("variantId", "not a WooCommerce variation id: "+item.VariantID)
			}
			line.VariationID = variationID
		}
		if line.Quantity <= 0 {
			return nil, model.NewValidationError("quantity", "must be positive")
		}
		order.LineItems = append(order.LineItems, line)
	}
	return order, nil
}

func webhookFromWoo(w *WooWebhook) adapter.Webhook {
	out := adapter.Webhook{
		ID:       strconv.Itoa(w.ID),
		Topic:    w.Topic,
		Endpoint: w.DeliveryURL,
	}
	if t, err := time.Parse(wooTimeLayout, w.DateCreatedGMT); err == nil {
		out.CreatedAt = t.UTC()
	}
	return out
}
