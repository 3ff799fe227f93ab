package match

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"order-router/internal/adapter"
	"order-router/internal/model"
)

// GetMatchOptions tunes GetMatch.
type GetMatchOptions struct {
	// RequireAll fails the whole lookup when any channel search fails.
	// Otherwise failures are reported per product.
	RequireAll bool
}

// MatchedProduct is a Match output item enriched with the channel's live
// product data.
type MatchedProduct struct {
	adapter.Product
	ChannelItemID string `json:"channelItemId"`
	ChannelID     string `json:"channelId"`
	ChannelName   string `json:"channelName"`
	Quantity      int    `json:"quantity"`
	Error         string `json:"error,omitempty"`
}

// Lookup is the result of GetMatch.
type Lookup struct {
	MatchID  string           `json:"matchId"`
	Products []MatchedProduct `json:"products"`
}

// GetMatch resolves input to the owner's cached Match without creating
// anything, then fetches live product data for each output item from its
// channel.
func (e *Engine) GetMatch(ctx context.Context, ownerID string, input []model.ItemKey, opts GetMatchOptions) (*Lookup, error) {
	m, err := e.find(ctx, ownerID, input)
	if err != nil {
		return nil, err
	}

	products := make([]MatchedProduct, len(m.Output))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, out := range m.Output {
		g.Go(func() error {
			mp, err := e.enrich(gctx, out)
			if err != nil {
				if opts.RequireAll {
					return fmt.Errorf("channel item %s: %w", out.ID, err)
				}
				mp.Error = err.Error()
				e.logger.Warn("match product lookup failed",
					"channel_id", out.ChannelID,
					"product_id", out.ProductID,
					"error", err,
				)
			}
			mu.Lock()
			products[i] = mp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Lookup{MatchID: m.ID, Products: products}, nil
}

// enrich always returns the routing fields, even on error.
func (e *Engine) enrich(ctx context.Context, out model.ChannelItem) (MatchedProduct, error) {
	mp := MatchedProduct{
		ChannelItemID: out.ID,
		ChannelID:     out.ChannelID,
		Quantity:      out.Quantity,
		Product: adapter.Product{
			ProductID: out.ProductID,
			VariantID: out.VariantID,
			Price:     out.Price,
		},
	}

	channel, err := e.store.GetChannel(ctx, out.ChannelID)
	if err != nil {
		return mp, fmt.Errorf("loading channel: %w", err)
	}
	mp.ChannelName = channel.Name

	res, err := e.adapters.SearchProducts(ctx, channel.Platform, &adapter.SearchProductsRequest{
		Domain:      channel.Domain,
		AccessToken: channel.AccessToken,
		ProductID:   out.ProductID,
		VariantID:   out.VariantID,
	})
	if err != nil {
		return mp, err
	}

	p, ok := pickProduct(res, out)
	if !ok {
		return mp, fmt.Errorf("product %s/%s: %w", out.ProductID, out.VariantID, model.ErrNotFound)
	}
	mp.Product = p
	return mp, nil
}

// pickProduct prefers the exact product/variant and falls back to the
// first result for channels that ignore the variant filter.
func pickProduct(res *adapter.SearchProductsResult, out model.ChannelItem) (adapter.Product, bool) {
	if res == nil || len(res.Products) == 0 {
		return adapter.Product{}, false
	}
	for _, p := range res.Products {
		if p.ProductID == out.ProductID && (out.VariantID == "" || p.VariantID == out.VariantID) {
			return p, true
		}
	}
	return res.Products[0], true
}
