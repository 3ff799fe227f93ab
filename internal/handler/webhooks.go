package handler

import (
	"net/http"

	"order-router/internal/webhook"
)

// handleWebhook acknowledges a delivery once its signature checks out.
// The raw body is kept intact for the signature.
func (h *Handler) handleWebhook(kind webhook.EventKind, pathKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		receipt, err := h.webhooks.Receive(r.Context(), kind, r.PathValue(pathKey), body, r.Header)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, receipt)
	}
}
