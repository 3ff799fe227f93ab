// Package webhook receives platform webhooks. A delivery is verified and
// acknowledged synchronously; reconciliation runs later on a worker pool.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"order-router/internal/model"
)

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC of the raw body. Any failure,
// including a missing secret or signature, is ErrInvalidWebhookSignature.
func Verify(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if secret == "" {
		return fmt.Errorf("%w: platform has no app secret", model.ErrInvalidWebhookSignature)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing signature", model.ErrInvalidWebhookSignature)
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", model.ErrInvalidWebhookSignature)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return model.ErrInvalidWebhookSignature
	}
	return nil
}

// VerifyRequest verifies body against the signature header p declares.
func VerifyRequest(p *model.Platform, body []byte, header http.Header) error {
	if p == nil {
		return model.ErrPlatformNotFound
	}
	return Verify(p.AppSecret, body, header.Get(p.WebhookSignatureHeader()))
}
