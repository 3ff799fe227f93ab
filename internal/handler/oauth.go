package handler

import (
	"net/http"

	"order-router/internal/model"
	"order-router/internal/oauth"
)

// handleOAuthStart redirects to the platform's authorization page.
// GET /oauth/start?platform=&type=&shop=
func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platformID := q.Get("platform")
	if platformID == "" {
		h.writeError(w, r, model.NewValidationError("platform", "is required"))
		return
	}

	target, err := h.oauth.Start(r.Context(), platformID, model.PlatformKind(q.Get("type")), q.Get("shop"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleOAuthCallback finishes the round trip and sends the user to the
// dashboard creation page.
func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.oauth.Callback(r.Context(), oauth.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Shop:             q.Get("shop"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
