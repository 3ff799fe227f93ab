// Package handler exposes the router over HTTP and MCP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"order-router/internal/caller"
	"order-router/internal/match"
	"order-router/internal/model"
	"order-router/internal/oauth"
	"order-router/internal/placement"
	"order-router/internal/webhook"
)

// WebhookReceiver verifies and schedules webhook deliveries.
type WebhookReceiver interface {
	Receive(ctx context.Context, kind webhook.EventKind, connectionID string, body []byte, header http.Header) (*webhook.Receipt, error)
}

// OAuthBroker runs authorization round trips.
type OAuthBroker interface {
	Start(ctx context.Context, platformID string, kind model.PlatformKind, shop string) (string, error)
	Callback(ctx context.Context, req oauth.CallbackRequest) (string, error)
}

// Matcher builds, applies and looks up cached routing.
type Matcher interface {
	MatchOrder(ctx context.Context, ownerID, orderID string) (*model.Match, error)
	ApplyMatch(ctx context.Context, ownerID, orderID string) (*match.ApplyResult, error)
	GetMatch(ctx context.Context, ownerID string, input []model.ItemKey, opts match.GetMatchOptions) (*match.Lookup, error)
}

// Placer sends an owner's orders to their channels.
type Placer interface {
	PlaceOwnedOrders(ctx context.Context, ownerID string, orderIDs []string) ([]placement.OrderOutcome, error)
}

// Deps wires a Handler.
type Deps struct {
	Webhooks WebhookReceiver
	OAuth    OAuthBroker
	Matcher  Matcher
	Placer   Placer
	Logger   *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	webhooks WebhookReceiver
	oauth    OAuthBroker
	matcher  Matcher
	placer   Placer
	logger   *slog.Logger
}

func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		webhooks: d.Webhooks,
		oauth:    d.OAuth,
		matcher:  d.Matcher,
		placer:   d.Placer,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Owner-scoped routes expect caller.Middleware in front of the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/channels/{channelID}/cancel", h.handleWebhook(webhook.EventChannelCancel, "channelID"))
	mux.HandleFunc("POST /webhooks/channels/{channelID}/tracking", h.handleWebhook(webhook.EventChannelTracking, "channelID"))
	mux.HandleFunc("POST /webhooks/shops/{shopID}/orders/create", h.handleWebhook(webhook.EventShopOrderCreate, "shopID"))
	mux.HandleFunc("POST /webhooks/shops/{shopID}/orders/cancel", h.handleWebhook(webhook.EventShopOrderCancel, "shopID"))

	mux.HandleFunc("GET /oauth/start", h.handleOAuthStart)
	mux.HandleFunc("GET /oauth/callback", h.handleOAuthCallback)

	mux.HandleFunc("POST /orders/place", h.handlePlaceOrders)
	mux.HandleFunc("POST /orders/{id}/match", h.handleMatchOrder)
	mux.HandleFunc("POST /orders/{id}/apply-match", h.handleApplyMatch)
	mux.HandleFunc("POST /matches/lookup", h.handleLookup)

	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps err onto the error envelope. Server-side failures are
// logged with their cause and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := model.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{Code: apiErr.Code, Message: apiErr.Message},
	})
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits request bodies, webhook payloads included.
const MaxRequestBodySize = 1 << 20 // 1MB

var errBodyTooLarge = &model.APIError{
	Code:       "PAYLOAD_TOO_LARGE",
	Message:    "request body exceeds 1MB",
	StatusCode: http.StatusRequestEntityTooLarge,
	Err:        model.ErrInvalidRequest,
}

// readBody returns the raw request body, bounded by MaxRequestBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, model.NewValidationError("body", "could not be read")
	}
	return body, nil
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// owner returns the caller identity set by caller.Middleware.
func owner(r *http.Request) (string, error) {
	id, ok := caller.OwnerFrom(r.Context())
	if !ok {
		return "", model.NewUnauthorizedError("Router-Caller header is required")
	}
	return id, nil
}
