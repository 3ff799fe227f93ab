// Package woocommerce implements the channel adapter for WooCommerce stores
// using the REST API v3. All WooCommerce-specific types, transforms and HTTP
// client logic live here.
package woocommerce

// === WooCommerce API Response Types ===

// WooProduct is a catalog product. Variable products list their variation
// ids; prices are string decimals.
type WooProduct struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Permalink     string     `json:"permalink"`
	Price         string     `json:"price"`
	RegularPrice  string     `json:"regular_price"`
	StockQuantity *int       `json:"stock_quantity"`
	StockStatus   string     `json:"stock_status"`
	Purchasable   bool       `json:"purchasable"`
	Images        []WooImage `json:"images,omitempty"`
	Variations    []int      `json:"variations,omitempty"`
}

// WooVariation is one variation of a variable product.
type WooVariation struct {
	ID            int            `json:"id"`
	Permalink     string         `json:"permalink"`
	Price         string         `json:"price"`
	RegularPrice  string         `json:"regular_price"`
	StockQuantity *int           `json:"stock_quantity"`
	StockStatus   string         `json:"stock_status"`
	Purchasable   bool           `json:"purchasable"`
	Image         *WooImage      `json:"image,omitempty"`
	Attributes    []WooAttribute `json:"attributes,omitempty"`
}

// WooAttribute is a chosen variation attribute, e.g. Color: Blue.
type WooAttribute struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// WooImage represents a product image.
type WooImage struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// WooAddress represents a WooCommerce address.
type WooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// WooOrder is the subset of an order the router reads back, both from
// create responses and order webhooks.
type WooOrder struct {
	ID       int    `json:"id"`
	Number   string `json:"number"`
	Status   string `json:"status"`
	OrderKey string `json:"order_key"`
}

// WooWebhook is a registered webhook. Dates are GMT without a zone suffix.
type WooWebhook struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Topic          string `json:"topic"`
	DeliveryURL    string `json:"delivery_url"`
	DateCreatedGMT string `json:"date_created_gmt"`
}

// WooErrorResponse represents a WooCommerce API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === WooCommerce API Request Types ===

// WooOrderRequest creates a purchase order on the channel.
type WooOrderRequest struct {
	Status       string             `json:"status,omitempty"`
	SetPaid      bool               `json:"set_paid"`
	Billing      WooAddress         `json:"billing"`
	Shipping     WooAddress         `json:"shipping"`
	LineItems    []WooLineItemInput `json:"line_items"`
	MetaData     []WooMeta          `json:"meta_data,omitempty"`
	CustomerNote string             `json:"customer_note,omitempty"`
}

// WooLineItemInput is one order line. VariationID is zero for simple
// products.
type WooLineItemInput struct {
	ProductID   int `json:"product_id"`
	VariationID int `json:"variation_id,omitempty"`
	Quantity    int `json:"quantity"`
}

// WooMeta is a key-value pair stored on an order.
type WooMeta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WooStockUpdate changes price and stock of a product or variation.
type WooStockUpdate struct {
	RegularPrice  string `json:"regular_price,omitempty"`
	ManageStock   *bool  `json:"manage_stock,omitempty"`
	StockQuantity *int   `json:"stock_quantity,omitempty"`
}

// WooWebhookRequest registers a webhook.
type WooWebhookRequest struct {
	Name        string `json:"name"`
	Topic       string `json:"topic"`
	DeliveryURL string `json:"delivery_url"`
	Status      string `json:"status"`
}
