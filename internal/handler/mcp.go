// MCP transport: match and placement operations as tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"order-router/internal/match"
	"order-router/internal/model"
)

// MCPMeta mirrors the Router-Caller header for MCP clients.
type MCPMeta struct {
	Owner string `json:"owner" jsonschema:"owner id the call acts for"`
}

// MatchOrderInput is the input schema for match_order.
type MatchOrderInput struct {
	Meta    MCPMeta `json:"meta" jsonschema:"request metadata"`
	OrderID string  `json:"order_id" jsonschema:"order whose routing becomes the cached match"`
}

// GetMatchInput is the input schema for get_match.
type GetMatchInput struct {
	Meta       MCPMeta         `json:"meta" jsonschema:"request metadata"`
	Input      []model.ItemKey `json:"input" jsonschema:"shop line items to resolve"`
	RequireAll bool            `json:"require_all,omitempty" jsonschema:"fail when any channel lookup fails"`
}

// PlaceOrdersInput is the input schema for place_orders.
type PlaceOrdersInput struct {
	Meta     MCPMeta  `json:"meta" jsonschema:"request metadata"`
	OrderIDs []string `json:"order_ids" jsonschema:"orders to place"`
}

// NewMCPServer creates an MCP server exposing the owner-scoped operations.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "order-router",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Order router: cache how a shop order's items route to supplier channels, " +
				"look the routing up for new orders, and place orders with their channels.",
		},
	)

	// Outputs are untyped: decimal prices and timestamps do not fit the
	// inferred output schemas.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "match_order",
		Description: "Record an order's current cart routing as the cached match for its line items.",
	}, h.mcpMatchOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_match",
		Description: "Resolve line items to their cached channel routing with live product data.",
	}, h.mcpGetMatch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_orders",
		Description: "Place the pending cart items of each order with their channels.",
	}, h.mcpPlaceOrders)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

func (h *Handler) mcpMatchOrder(ctx context.Context, req *mcp.CallToolRequest, input MatchOrderInput) (*mcp.CallToolResult, any, error) {
	ownerID, err := mcpOwner(input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if input.OrderID == "" {
		return nil, nil, errors.New("order_id is required")
	}
	m, err := h.matcher.MatchOrder(ctx, ownerID, input.OrderID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, m, nil
}

func (h *Handler) mcpGetMatch(ctx context.Context, req *mcp.CallToolRequest, input GetMatchInput) (*mcp.CallToolResult, any, error) {
	ownerID, err := mcpOwner(input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if len(input.Input) == 0 {
		return nil, nil, errors.New("input is required")
	}
	lookup, err := h.matcher.GetMatch(ctx, ownerID, input.Input, match.GetMatchOptions{RequireAll: input.RequireAll})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, lookup, nil
}

func (h *Handler) mcpPlaceOrders(ctx context.Context, req *mcp.CallToolRequest, input PlaceOrdersInput) (*mcp.CallToolResult, any, error) {
	ownerID, err := mcpOwner(input.Meta)
	if err != nil {
		return nil, nil, err
	}
	outcomes, err := h.placer.PlaceOwnedOrders(ctx, ownerID, input.OrderIDs)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, placeOrdersResponse{Orders: outcomes}, nil
}

func mcpOwner(meta MCPMeta) (string, error) {
	if meta.Owner == "" {
		return "", errors.New("CALLER_REQUIRED: meta.owner is required")
	}
	return meta.Owner, nil
}

// mcpError keeps the error code and hides internal details.
func (h *Handler) mcpError(err error) error {
	apiErr := model.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("mcp internal error", "code", apiErr.Code, "error", err.Error())
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
