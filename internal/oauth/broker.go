package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order-router/internal/adapter"
	"order-router/internal/model"
	"order-router/internal/store"
)

// Broker runs the authorization round trip for shops and channels.
type Broker struct {
	platforms    store.PlatformStore
	adapters     adapter.Adapter
	signer       *Signer
	dashboardURL string
	redirectURI  string
	logger       *slog.Logger
}

// Config holds the URLs the broker sends users to.
type Config struct {
	// DashboardURL is the base of the creation pages users land on.
	DashboardURL string
	// RedirectURI is this router's public callback URL.
	RedirectURI string
}

func NewBroker(platforms store.PlatformStore, adapters adapter.Adapter, signer *Signer, cfg Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		platforms:    platforms,
		adapters:     adapters,
		signer:       signer,
		dashboardURL: strings.TrimRight(cfg.DashboardURL, "/"),
		redirectURI:  cfg.RedirectURI,
		logger:       logger,
	}
}

// Start issues a signed state for the platform and asks its adapter for
// the authorization URL.
func (b *Broker) Start(ctx context.Context, platformID string, kind model.PlatformKind, shop string) (string, error) {
	if !validKind(string(kind)) {
		return "", model.NewValidationError("type", "must be shop or channel")
	}
	platform, err := b.platforms.GetPlatform(ctx, platformID)
	if err != nil {
		return "", err
	}
	state, err := b.signer.Issue(platform.ID, kind)
	if err != nil {
		return "", fmt.Errorf("issuing state: %w", err)
	}

	res, err := b.adapters.OAuth(ctx, platform, &adapter.OAuthRequest{
		Shop:        shop,
		State:       state,
		RedirectURI: b.redirectURI,
		AppKey:      platform.AppKey,
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.URL == "" {
		return "", fmt.Errorf("platform %s returned no authorization url", platform.ID)
	}

	b.logger.Info("oauth started", "platform_id", platform.ID, "kind", kind, "shop", shop)
	return res.URL, nil
}

// CallbackRequest is the query of an authorization callback.
type CallbackRequest struct {
	Code             string
	State            string
	Shop             string
	Error            string
	ErrorDescription string
}

// Callback verifies the state, exchanges the code and returns the
// dashboard URL to redirect to.
func (b *Broker) Callback(ctx context.Context, req CallbackRequest) (string, error) {
	if req.Error != "" {
		msg := req.ErrorDescription
		if msg == "" {
			msg = req.Error
		}
		return "", &model.APIError{
			Code:       "OAUTH_DENIED",
			Message:    msg,
			StatusCode: http.StatusBadRequest,
			Err:        model.ErrInvalidRequest,
		}
	}
	if req.Code == "" {
		return "", model.NewValidationError("code", "is required")
	}

	state, err := b.signer.Decode(req.State)
	if err != nil {
		b.logger.Warn("oauth state rejected", "error", err)
		return "", err
	}

	platform, kind, err := b.resolve(ctx, state)
	if err != nil {
		return "", err
	}

	token, err := b.adapters.OAuthCallback(ctx, platform, &adapter.OAuthCallbackRequest{
		Code:        req.Code,
		Shop:        req.Shop,
		AppKey:      platform.AppKey,
		AppSecret:   platform.AppSecret,
		RedirectURI: b.redirectURI,
	})
	if err != nil {
		return "", err
	}
	if token == nil || token.AccessToken == "" {
		return "", fmt.Errorf("platform %s returned no access token", platform.ID)
	}

	q := url.Values{}
	q.Set("domain", req.Shop)
	q.Set("accessToken", token.AccessToken)
	if token.RefreshToken != "" {
		q.Set("refreshToken", token.RefreshToken)
	}
	if token.TokenExpiresAt != nil {
		q.Set("tokenExpiresAt", token.TokenExpiresAt.UTC().Format(time.RFC3339))
	}
	if m := state.Marketplace; m != nil {
		q.Set("client_id", m.ClientID)
		q.Set("client_secret", m.ClientSecret)
		q.Set("app_name", m.AppName)
		q.Set("adapter_slug", m.AdapterSlug)
	} else {
		q.Set("platform", platform.ID)
	}

	b.logger.Info("oauth completed",
		"platform_id", platform.ID,
		"kind", kind,
		"marketplace", state.Marketplace != nil,
	)
	return fmt.Sprintf("%s/dashboard/platform/create-%s?%s", b.dashboardURL, kind, q.Encode()), nil
}

// resolve finds the platform a state points at. Marketplace states carry
// their own credentials and route every capability to the named adapter.
func (b *Broker) resolve(ctx context.Context, state *State) (*model.Platform, string, error) {
	if m := state.Marketplace; m != nil {
		caps := make(map[model.Capability]string, len(model.Capabilities))
		for _, c := range model.Capabilities {
			caps[c] = m.AdapterSlug
		}
		return &model.Platform{
			ID:           m.AdapterSlug,
			Name:         m.AppName,
			Kind:         model.PlatformKind(m.AppType),
			AppKey:       m.ClientID,
			AppSecret:    m.ClientSecret,
			Capabilities: caps,
		}, m.AppType, nil
	}

	platform, err := b.platforms.GetPlatform(ctx, state.Legacy.PlatformID)
	if err != nil {
		return nil, "", err
	}
	return platform, state.Legacy.Type, nil
}
