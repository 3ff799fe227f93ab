// Package oauth brokers platform authorization. It issues and verifies the
// state parameter, exchanges codes through the adapter contract and sends
// the user back to the dashboard with the resulting credentials.
package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-router/internal/model"
)

// StateTTL is how long a signed state stays valid.
const StateTTL = 10 * time.Minute

const marketplaceType = "marketplace"

// MarketplaceState is issued by the marketplace and carries app credentials.
// It is trusted as-is.
type MarketplaceState struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AdapterSlug  string `json:"adapter_slug"`
	AppType      string `json:"app_type"`
	AppName      string `json:"app_name"`
}

// LegacyPayload is the signed part of a router-issued state.
type LegacyPayload struct {
	PlatformID string `json:"platformId"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
}

// State is a decoded state parameter. Exactly one field is set.
type State struct {
	Marketplace *MarketplaceState
	Legacy      *LegacyPayload
}

// envelope covers both wire forms so one decode attempt handles either.
type envelope struct {
	MarketplaceState
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Signer issues and verifies legacy states with an HMAC-SHA256 secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a signer for secret, which must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("oauth state secret is required")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue returns a base64 state for platformID and kind (shop or channel).
func (s *Signer) Issue(platformID string, kind model.PlatformKind) (string, error) {
	payload, err := json.Marshal(LegacyPayload{
		PlatformID: platformID,
		Type:       string(kind),
		Timestamp:  s.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(envelope{Payload: string(payload), Signature: s.sign(string(payload))})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode resolves raw into a State. Plain JSON is tried first, then
// base64-encoded JSON.
func (s *Signer) Decode(raw string) (*State, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}

	if env.Type == marketplaceType {
		m := env.MarketplaceState
		if m.ClientID == "" || m.AdapterSlug == "" {
			return nil, fmt.Errorf("%w: marketplace state lacks client_id or adapter_slug", model.ErrInvalidStateParameter)
		}
		if !validKind(m.AppType) {
			return nil, fmt.Errorf("%w: app_type %q", model.ErrInvalidStateParameter, m.AppType)
		}
		return &State{Marketplace: &m}, nil
	}

	if env.Payload == "" || env.Signature == "" {
		return nil, fmt.Errorf("%w: missing payload or signature", model.ErrInvalidStateParameter)
	}
	if !hmac.Equal([]byte(strings.ToLower(env.Signature)), []byte(s.sign(env.Payload))) {
		return nil, model.ErrInvalidStateSignature
	}

	var p LegacyPayload
	if err := json.Unmarshal([]byte(env.Payload), &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", model.ErrInvalidStateParameter, err)
	}
	if p.PlatformID == "" || !validKind(p.Type) {
		return nil, fmt.Errorf("%w: payload lacks platformId or type", model.ErrInvalidStateParameter)
	}
	if age := s.now().Sub(time.UnixMilli(p.Timestamp)); age > StateTTL {
		return nil, fmt.Errorf("%w: issued %s ago", model.ErrStateExpired, age.Round(time.Second))
	}
	return &State{Legacy: &p}, nil
}

func parseEnvelope(raw string) (*envelope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty state", model.ErrInvalidStateParameter)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		return &env, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: neither JSON nor base64", model.ErrInvalidStateParameter)
	}
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, fmt.Errorf("%w: decoded state is not JSON", model.ErrInvalidStateParameter)
	}
	return &env, nil
}

func validKind(k string) bool {
	return k == string(model.PlatformKindShop) || k == string(model.PlatformKindChannel)
}
