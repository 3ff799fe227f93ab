package shopify

import (
	"time"

	"github.com/shopspring/decimal"
)

// === Webhook payloads ===

// orderPayload is the body of the orders/create and orders/cancelled
// webhooks. Money fields arrive as decimal strings.
type orderPayload struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	ContactEmail    string          `json:"contact_email"`
	Currency        string          `json:"currency"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	SubtotalPrice   decimal.Decimal `json:"subtotal_price"`
	TotalDiscounts  decimal.Decimal `json:"total_discounts"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	CreatedAt       *time.Time      `json:"created_at"`
	CancelledAt     *time.Time      `json:"cancelled_at"`
	ShippingAddress *address        `json:"shipping_address"`
	LineItems       []lineItem      `json:"line_items"`
}

type address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Zip         string `json:"zip"`
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
}

type lineItem struct {
	Title     string          `json:"title"`
	Name      string          `json:"name"`
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// === GraphQL data ===

type imageNode struct {
	URL string `json:"url"`
}

type variantNode struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price"`
	InventoryQuantity *int            `json:"inventoryQuantity"`
	AvailableForSale  bool            `json:"availableForSale"`
	Image             *imageNode      `json:"image"`
	Product           struct {
		ID             string     `json:"id"`
		Title          string     `json:"title"`
		OnlineStoreURL string     `json:"onlineStoreUrl"`
		FeaturedImage  *imageNode `json:"featuredImage"`
	} `json:"product"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type productVariantsData struct {
	ProductVariants struct {
		PageInfo pageInfo      `json:"pageInfo"`
		Nodes    []variantNode `json:"nodes"`
	} `json:"productVariants"`
}

type productVariantData struct {
	ProductVariant *variantNode `json:"productVariant"`
}

type fulfillmentOrdersData struct {
	Order *struct {
		FulfillmentOrders struct {
			Nodes []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"nodes"`
		} `json:"fulfillmentOrders"`
	} `json:"order"`
}

type fulfillmentCreateData struct {
	FulfillmentCreate struct {
		Fulfillment *struct {
			ID string `json:"id"`
		} `json:"fulfillment"`
		UserErrors []userError `json:"userErrors"`
	} `json:"fulfillmentCreate"`
}

type webhookNode struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
	Endpoint  struct {
		CallbackURL string `json:"callbackUrl"`
	} `json:"endpoint"`
}

type webhookCreateData struct {
	WebhookSubscriptionCreate struct {
		WebhookSubscription *webhookNode `json:"webhookSubscription"`
		UserErrors          []userError  `json:"userErrors"`
	} `json:"webhookSubscriptionCreate"`
}

type webhookDeleteData struct {
	WebhookSubscriptionDelete struct {
		DeletedWebhookSubscriptionID string      `json:"deletedWebhookSubscriptionId"`
		UserErrors                   []userError `json:"userErrors"`
	} `json:"webhookSubscriptionDelete"`
}

type webhooksData struct {
	WebhookSubscriptions struct {
		Nodes []webhookNode `json:"nodes"`
	} `json:"webhookSubscriptions"`
}

// accessTokenResponse answers POST /admin/oauth/access_token.
type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}
