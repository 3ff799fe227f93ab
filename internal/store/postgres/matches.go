package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"order-router/internal/model"
)

func (s *Store) FindShopItem(ctx context.Context, ownerID, shopID string, key model.ItemKey) (*model.ShopItem, error) {
	var it model.ShopItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, shop_id, product_id, variant_id, quantity, price
		FROM shop_items
		WHERE owner_id = $1 AND shop_id = $2 AND product_id = $3 AND variant_id = $4 AND quantity = $5`,
		ownerID, shopID, key.ProductID, key.VariantID, key.Quantity,
	).Scan(&it.ID, &it.OwnerID, &it.ShopID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shop item: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding shop item: %w", err)
	}
	return &it, nil
}

// CreateShopItem upserts on the dedup key; on conflict the existing row's
// id and price are returned into item.
func (s *Store) CreateShopItem(ctx context.Context, item *model.ShopItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO shop_items (id, owner_id, shop_id, product_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, shop_id, product_id, variant_id, quantity)
		DO UPDATE SET quantity = shop_items.quantity
		RETURNING id, price`,
		item.ID, item.OwnerID, item.ShopID, item.ProductID, item.VariantID, item.Quantity, item.Price,
	).Scan(&item.ID, &item.Price)
	if err != nil {
		return fmt.Errorf("inserting shop item: %w", err)
	}
	return nil
}

func (s *Store) FindChannelItem(ctx context.Context, ownerID, channelID string, key model.ItemKey) (*model.ChannelItem, error) {
	var it model.ChannelItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, channel_id, product_id, variant_id, quantity, price
		FROM channel_items
		WHERE owner_id = $1 AND channel_id = $2 AND product_id = $3 AND variant_id = $4 AND quantity = $5`,
		ownerID, channelID, key.ProductID, key.VariantID, key.Quantity,
	).Scan(&it.ID, &it.OwnerID, &it.ChannelID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel item: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding channel item: %w", err)
	}
	return &it, nil
}

func (s *Store) CreateChannelItem(ctx context.Context, item *model.ChannelItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO channel_items (id, owner_id, channel_id, product_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, channel_id, product_id, variant_id, quantity)
		DO UPDATE SET quantity = channel_items.quantity
		RETURNING id, price`,
		item.ID, item.OwnerID, item.ChannelID, item.ProductID, item.VariantID, item.Quantity, item.Price,
	).Scan(&item.ID, &item.Price)
	if err != nil {
		return fmt.Errorf("inserting channel item: %w", err)
	}
	return nil
}

// FindMatchesCovering selects matches where no key lacks an equal input
// item, then loads each match's items.
func (s *Store) FindMatchesCovering(ctx context.Context, ownerID string, keys []model.ItemKey) ([]model.Match, error) {
	products := make([]string, len(keys))
	variants := make([]string, len(keys))
	quantities := make([]int64, len(keys))
	for i, k := range keys {
		products[i] = k.ProductID
		variants[i] = k.VariantID
		quantities[i] = int64(k.Quantity)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.owner_id, m.created_at
		FROM matches m
		WHERE m.owner_id = $1
		AND NOT EXISTS (
			SELECT 1 FROM unnest($2::text[], $3::text[], $4::int[]) AS k(product_id, variant_id, quantity)
			WHERE NOT EXISTS (
				SELECT 1 FROM match_inputs mi
				JOIN shop_items si ON si.id = mi.shop_item_id
				WHERE mi.match_id = m.id
				AND si.product_id = k.product_id AND si.variant_id = k.variant_id AND si.quantity = k.quantity
			)
		)
		ORDER BY m.created_at, m.id`,
		ownerID, pq.Array(products), pq.Array(variants), pq.Array(quantities),
	)
	if err != nil {
		return nil, fmt.Errorf("finding matches: %w", err)
	}

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range matches {
		if err := s.loadMatchItems(ctx, &matches[i]); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (s *Store) loadMatchItems(ctx context.Context, m *model.Match) error {
	in, err := s.db.QueryContext(ctx,
		`SELECT si.id, si.owner_id, si.shop_id, si.product_id, si.variant_id, si.quantity, si.price
		FROM match_inputs mi JOIN shop_items si ON si.id = mi.shop_item_id
		WHERE mi.match_id = $1 ORDER BY si.id`,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("loading match inputs: %w", err)
	}
	for in.Next() {
		var it model.ShopItem
		if err := in.Scan(&it.ID, &it.OwnerID, &it.ShopID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price); err != nil {
			in.Close()
			return fmt.Errorf("scanning match input: %w", err)
		}
		m.Input = append(m.Input, it)
	}
	in.Close()
	if err := in.Err(); err != nil {
		return err
	}

	out, err := s.db.QueryContext(ctx,
		`SELECT ci.id, ci.owner_id, ci.channel_id, ci.product_id, ci.variant_id, ci.quantity, ci.price
		FROM match_outputs mo JOIN channel_items ci ON ci.id = mo.channel_item_id
		WHERE mo.match_id = $1 ORDER BY ci.id`,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("loading match outputs: %w", err)
	}
	defer out.Close()
	for out.Next() {
		var it model.ChannelItem
		if err := out.Scan(&it.ID, &it.OwnerID, &it.ChannelID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scanning match output: %w", err)
		}
		m.Output = append(m.Output, it)
	}
	return out.Err()
}

func (s *Store) CreateMatch(ctx context.Context, m *model.Match) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO matches (id, owner_id, created_at) VALUES ($1, $2, $3)`,
			m.ID, m.OwnerID, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
		for _, it := range m.Input {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO match_inputs (match_id, shop_item_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				m.ID, it.ID,
			); err != nil {
				return fmt.Errorf("linking match input: %w", err)
			}
		}
		for _, it := range m.Output {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO match_outputs (match_id, channel_item_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				m.ID, it.ID,
			); err != nil {
				return fmt.Errorf("linking match output: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteMatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting match %s: %w", id, err)
	}
	return expectOneRow(res, "match", id)
}
