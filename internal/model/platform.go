// Package model defines the records the router reads and writes and the
// error taxonomy shared by every component.
package model

import (
	"strings"
	"time"
)

// Capability names one operation in the fixed adapter contract.
type Capability string

const (
	CapSearchProducts            Capability = "searchProducts"
	CapGetProduct                Capability = "getProduct"
	CapUpdateProduct             Capability = "updateProduct"
	CapCreatePurchase            Capability = "createPurchase"
	CapCreateWebhook             Capability = "createWebhook"
	CapDeleteWebhook             Capability = "deleteWebhook"
	CapGetWebhooks               Capability = "getWebhooks"
	CapOAuth                     Capability = "oAuth"
	CapOAuthCallback             Capability = "oAuthCallback"
	CapCreateOrderWebhookHandler Capability = "createOrderWebhookHandler"
	CapCancelOrderWebhookHandler Capability = "cancelOrderWebhookHandler"
	CapAddTracking               Capability = "addTracking"

	// capAddCartToPlatformOrder is the older name channel platforms used for
	// createPurchase. Platform rows may still carry it.
	capAddCartToPlatformOrder Capability = "addCartToPlatformOrder"
)

// Capabilities lists the closed capability set in contract order.
var Capabilities = []Capability{
	CapSearchProducts,
	CapGetProduct,
	CapUpdateProduct,
	CapCreatePurchase,
	CapCreateWebhook,
	CapDeleteWebhook,
	CapGetWebhooks,
	CapOAuth,
	CapOAuthCallback,
	CapCreateOrderWebhookHandler,
	CapCancelOrderWebhookHandler,
	CapAddTracking,
}

// IsValid reports whether c belongs to the capability contract.
func (c Capability) IsValid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return c == capAddCartToPlatformOrder
}

// Canonical folds aliases onto their contract name.
func (c Capability) Canonical() Capability {
	if c == capAddCartToPlatformOrder {
		return CapCreatePurchase
	}
	return c
}

// PlatformKind tells whether a platform sources orders or fulfills them.
type PlatformKind string

const (
	PlatformKindShop    PlatformKind = "shop"
	PlatformKindChannel PlatformKind = "channel"
)

// DefaultSignatureHeader carries the base64 HMAC-SHA256 of webhook bodies
// for platforms that do not name their own header.
const DefaultSignatureHeader = "X-Shopify-Hmac-Sha256"

// Platform identifies an external commerce system. Each capability maps to
// either an HTTP endpoint or the identifier of a locally registered adapter.
type Platform struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Kind            PlatformKind          `json:"kind"`
	AppKey          string                `json:"appKey,omitempty"`
	AppSecret       string                `json:"appSecret,omitempty"`
	SignatureHeader string                `json:"signatureHeader,omitempty"`
	Capabilities    map[Capability]string `json:"capabilities"`
}

// Endpoint returns the configured target for c, honoring the legacy
// addCartToPlatformOrder name for createPurchase.
func (p *Platform) Endpoint(c Capability) string {
	if p == nil || p.Capabilities == nil {
		return ""
	}
	c = c.Canonical()
	if v := strings.TrimSpace(p.Capabilities[c]); v != "" {
		return v
	}
	if c == CapCreatePurchase {
		return strings.TrimSpace(p.Capabilities[capAddCartToPlatformOrder])
	}
	return ""
}

// WebhookSignatureHeader returns the header that carries webhook signatures.
func (p *Platform) WebhookSignatureHeader() string {
	if p == nil || p.SignatureHeader == "" {
		return DefaultSignatureHeader
	}
	return p.SignatureHeader
}

// Connection is the credential set shared by shops and channels.
type Connection struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Name           string     `json:"name"`
	Domain         string     `json:"domain"`
	AccessToken    string     `json:"accessToken"`
	RefreshToken   string     `json:"refreshToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	PlatformID     string     `json:"platformId"`
	Platform       *Platform  `json:"platform,omitempty"`
}

// Shop is the connection an order originates from.
type Shop struct {
	Connection
}

// Channel is a connection that supplies and ships goods.
type Channel struct {
	Connection
}
