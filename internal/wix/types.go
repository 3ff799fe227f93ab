// Package wix implements the channel adapter for Wix stores.
//
// Authentication:
// Sites install the router as a Wix app. The install redirect carries an
// authorization code that is exchanged for an access token and a refresh
// token. Access tokens are short lived; the expiry is returned with the
// token so the connection can be refreshed by whoever stores it.
//
// Purchases:
// A channel purchase is a checkout built server-side with the buyer's
// shipping details, then turned into an order with create-order.
package wix

import "github.com/shopspring/decimal"

// === OAuth Types ===

// OAuthAccessRequest exchanges an install code for tokens.
type OAuthAccessRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
}

// OAuthTokenResponse contains the OAuth2 token from Wix. ExpiresIn is
// omitted by the code exchange; tokens then live for defaultTokenTTL.
type OAuthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// === Catalog Types ===

// WixProduct is a Wix Stores catalog product. Prices are JSON numbers.
type WixProduct struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	ProductPageURL *WixPageURL   `json:"productPageUrl,omitempty"`
	PriceData      *WixPriceData `json:"priceData,omitempty"`
	Stock          *WixStock     `json:"stock,omitempty"`
	Media          *WixMedia     `json:"media,omitempty"`
	ManageVariants bool          `json:"manageVariants"`
	Variants       []WixVariant  `json:"variants,omitempty"`
	Visible        bool          `json:"visible"`
}

// WixPageURL splits the product page into site base and path.
type WixPageURL struct {
	Base string `json:"base"`
	Path string `json:"path"`
}

type WixPriceData struct {
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

// WixStock is the stock state of a product or variant. Quantity is only
// set when inventory is tracked.
type WixStock struct {
	TrackInventory bool `json:"trackInventory"`
	Quantity       *int `json:"quantity,omitempty"`
	InStock        bool `json:"inStock"`
}

type WixMedia struct {
	MainMedia *struct {
		Image *WixImage `json:"image,omitempty"`
	} `json:"mainMedia,omitempty"`
}

// WixImage represents a product image.
type WixImage struct {
	URL string `json:"url"`
}

// WixVariant is one option combination of a product with managed variants.
type WixVariant struct {
	ID      string            `json:"id"`
	Choices map[string]string `json:"choices"`
	Variant *struct {
		PriceData *WixPriceData `json:"priceData,omitempty"`
		Visible   bool          `json:"visible"`
	} `json:"variant,omitempty"`
	Stock *WixStock `json:"stock,omitempty"`
}

// WixProductQuery is the body of POST /stores/v1/products/query. Filter is
// a JSON-encoded filter object.
type WixProductQuery struct {
	Query struct {
		Filter string    `json:"filter,omitempty"`
		Paging WixPaging `json:"paging"`
	} `json:"query"`
	IncludeVariants bool `json:"includeVariants"`
}

type WixPaging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type WixProductsResponse struct {
	Products     []WixProduct `json:"products"`
	TotalResults int          `json:"totalResults"`
}

type WixProductResponse struct {
	Product *WixProduct `json:"product"`
}

// === Checkout Types ===

// WixCatalogRef identifies a product in the Wix catalog.
type WixCatalogRef struct {
	CatalogItemID string         `json:"catalogItemId"`
	AppID         string         `json:"appId"`
	Options       map[string]any `json:"options,omitempty"`
}

// WixStoresAppID is the Wix Stores application ID for catalog references.
const WixStoresAppID = "215238eb-22a5-4c36-9e7b-e7c08025e04e"

// WixLineItemInput is one line of a new checkout.
type WixLineItemInput struct {
	CatalogReference *WixCatalogRef `json:"catalogReference"`
	Quantity         int            `json:"quantity"`
}

// WixCreateCheckoutRequest creates a checkout with its lines and buyer
// details in one call.
type WixCreateCheckoutRequest struct {
	LineItems    []WixLineItemInput `json:"lineItems"`
	ChannelType  string             `json:"channelType"`
	CheckoutInfo *WixCheckoutInfo   `json:"checkoutInfo,omitempty"`
}

type WixCheckoutInfo struct {
	ShippingInfo *WixShippingInfo `json:"shippingInfo,omitempty"`
	BillingInfo  *WixBillingInfo  `json:"billingInfo,omitempty"`
	BuyerInfo    *WixBuyerInfo    `json:"buyerInfo,omitempty"`
}

// WixShippingInfo contains shipping address and details.
type WixShippingInfo struct {
	ShippingDestination *WixShippingDestination `json:"shippingDestination,omitempty"`
}

// WixShippingDestination contains the nested address structure for shipping.
// Wix API requires address fields nested under "address", not directly on destination.
type WixShippingDestination struct {
	Address        *WixAddress        `json:"address,omitempty"`
	ContactDetails *WixContactDetails `json:"contactDetails,omitempty"`
}

// WixBillingInfo contains billing address.
type WixBillingInfo struct {
	Address        *WixAddress        `json:"address,omitempty"`
	ContactDetails *WixContactDetails `json:"contactDetails,omitempty"`
}

// WixBuyerInfo contains buyer identity information.
type WixBuyerInfo struct {
	Email string `json:"email,omitempty"`
}

// WixAddress represents a Wix address.
// Note: Wix eCommerce API uses "addressLine" (not "addressLine1" or "streetAddress").
type WixAddress struct {
	AddressLine  string `json:"addressLine,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city,omitempty"`
	Subdivision  string `json:"subdivision,omitempty"` // e.g. "US-CA"
	Country      string `json:"country,omitempty"`     // ISO 3166-1 alpha-2
	PostalCode   string `json:"postalCode,omitempty"`
}

// WixContactDetails contains name and phone for addresses.
type WixContactDetails struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// WixCheckoutResponse wraps checkout API responses.
type WixCheckoutResponse struct {
	Checkout *struct {
		ID string `json:"id"`
	} `json:"checkout"`
}

// WixCreateOrderResponse answers POST /ecom/v1/checkouts/{id}/create-order.
type WixCreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

// === Errors ===

// WixErrorResponse represents a Wix API error.
type WixErrorResponse struct {
	Message string           `json:"message"`
	Details *WixErrorDetails `json:"details,omitempty"`
}

// WixErrorDetails contains additional error information.
type WixErrorDetails struct {
	ApplicationError *WixApplicationError `json:"applicationError,omitempty"`
}

type WixApplicationError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
