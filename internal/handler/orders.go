package handler

import (
	"net/http"

	"order-router/internal/match"
	"order-router/internal/model"
	"order-router/internal/placement"
)

type placeOrdersRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type placeOrdersResponse struct {
	Orders []placement.OrderOutcome `json:"orders"`
}

// handlePlaceOrders places orders in bulk. Per-order and per-group
// failures are part of the 200 body.
// POST /orders/place
func (h *Handler) handlePlaceOrders(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req placeOrdersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	outcomes, err := h.placer.PlaceOwnedOrders(r.Context(), ownerID, req.OrderIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, placeOrdersResponse{Orders: outcomes})
}

// POST /orders/{id}/match
func (h *Handler) handleMatchOrder(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.matcher.MatchOrder(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// POST /orders/{id}/apply-match
func (h *Handler) handleApplyMatch(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.matcher.ApplyMatch(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type lookupRequest struct {
	Input      []model.ItemKey `json:"input"`
	RequireAll bool            `json:"requireAll"`
}

// POST /matches/lookup
func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req lookupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Input) == 0 {
		h.writeError(w, r, model.NewValidationError("input", "at least one item is required"))
		return
	}

	lookup, err := h.matcher.GetMatch(r.Context(), ownerID, req.Input, match.GetMatchOptions{RequireAll: req.RequireAll})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lookup)
}
