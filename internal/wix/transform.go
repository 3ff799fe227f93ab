package wix

import (
	"sort"
	"strings"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// === Wix → router ===

// productFromWix converts the product level of a catalog product.
// Products without managed variants have no variant id.
func productFromWix(wp *WixProduct) adapter.Product {
	p := adapter.Product{
		Title:     wp.Name,
		ProductID: wp.ID,
	}
	if wp.PriceData != nil {
		p.Price = wp.PriceData.Price
	}
	if wp.Stock != nil {
		p.AvailableForSale = wp.Stock.InStock
		if wp.Stock.TrackInventory {
			p.Inventory = wp.Stock.Quantity
		}
	}
	if wp.Media != nil && wp.Media.MainMedia != nil && wp.Media.MainMedia.Image != nil {
		p.Image = wp.Media.MainMedia.Image.URL
	}
	if u := wp.ProductPageURL; u != nil && u.Base != "" {
		p.ProductLink = strings.TrimRight(u.Base, "/") + "/" + strings.TrimLeft(u.Path, "/")
	}
	return p
}

// productsFromWix expands a product into one entry per managed variant.
func productsFromWix(wp *WixProduct) []adapter.Product {
	base := productFromWix(wp)
	if !wp.ManageVariants || len(wp.Variants) == 0 {
		return []adapter.Product{base}
	}

	out := make([]adapter.Product, 0, len(wp.Variants))
	for _, v := range wp.Variants {
		p := base
		p.VariantID = v.ID
		if v.Variant != nil && v.Variant.PriceData != nil {
			p.Price = v.Variant.PriceData.Price
		}
		if v.Stock != nil {
			p.AvailableForSale = v.Stock.InStock
			p.Inventory = nil
			if v.Stock.TrackInventory {
				p.Inventory = v.Stock.Quantity
			}
		}
		if label := choicesLabel(v.Choices); label != "" {
			p.Title = base.Title + " - " + label
		}
		out = append(out, p)
	}
	return out
}

// choicesLabel renders variant choices in option-name order.
func choicesLabel(choices map[string]string) string {
	names := make([]string, 0, len(choices))
	for name := range choices {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = choices[name]
	}
	return strings.Join(values, " / ")
}

// === router → Wix ===

// subdivision builds the Wix "US-CA" form from country and state.
func subdivision(a model.Address) string {
	if a.Country != "" && a.State != "" && !strings.Contains(a.State, "-") {
		return a.Country + "-" + a.State
	}
	return a.State
}

func addressToWix(a model.Address) *WixAddress {
	return &WixAddress{
		AddressLine:  a.StreetAddress1,
		AddressLine2: a.StreetAddress2,
		City:         a.City,
		Subdivision:  subdivision(a),
		Country:      a.Country,
		PostalCode:   a.Zip,
	}
}

func contactToWix(a model.Address) *WixContactDetails {
	return &WixContactDetails{FirstName: a.FirstName, LastName: a.LastName, Phone: a.Phone}
}

// checkoutRequest builds the checkout for one channel group.
func checkoutRequest(req *adapter.CreatePurchaseRequest) (*WixCreateCheckoutRequest, error) {
	if len(req.CartItems) == 0 {
		return nil, model.NewValidationError("cartItems", "must not be empty")
	}
	out := &WixCreateCheckoutRequest{
		ChannelType: "OTHER_PLATFORM",
		CheckoutInfo: &WixCheckoutInfo{
			ShippingInfo: &WixShippingInfo{ShippingDestination: &WixShippingDestination{
				Address:        addressToWix(req.Address),
				ContactDetails: contactToWix(req.Address),
			}},
			BillingInfo: &WixBillingInfo{
				Address:        addressToWix(req.Address),
				ContactDetails: contactToWix(req.Address),
			},
		},
	}
	if req.Email != "" {
		out.CheckoutInfo.BuyerInfo = &WixBuyerInfo{Email: req.Email}
	}
	for _, item := range req.CartItems {
		if item.ProductID == "" {
			return nil, model.NewValidationError("productId", "is required")
		}
		if item.Quantity <= 0 {
			return nil, model.NewValidationError("quantity", "must be positive")
		}
		ref := &WixCatalogRef{CatalogItemID: item.ProductID, AppID: WixStoresAppID}
		if item.VariantID != "" && item.VariantID != item.ProductID {
			ref.Options = map[string]any{"variantId": item.VariantID}
		}
		out.LineItems = append(out.LineItems, WixLineItemInput{CatalogReference: ref, Quantity: item.Quantity})
	}
	return out, nil
}
