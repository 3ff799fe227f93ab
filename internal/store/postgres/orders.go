package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"order-router/internal/model"
)

const orderColumns = `id, owner_id, shop_id, order_id, order_name, email, address, currency,
	total_price, sub_total_price, total_discount, total_tax, status, created_at, updated_at`

const cartItemColumns = `id, order_id, channel_id, name, image, product_id, variant_id, quantity, price,
	purchase_id, url, error, status, tracking_number, tracking_company`

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o       model.Order
		address []byte
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &o.ShopID, &o.OrderID, &o.OrderName, &o.Email, &address, &o.Currency,
		&o.TotalPrice, &o.SubTotalPrice, &o.TotalDiscount, &o.TotalTax, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.Address); err != nil {
			return nil, fmt.Errorf("decoding address of order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func scanCartItem(row rowScanner) (model.CartItem, error) {
	var ci model.CartItem
	err := row.Scan(
		&ci.ID, &ci.OrderID, &ci.ChannelID, &ci.Name, &ci.Image, &ci.ProductID, &ci.VariantID, &ci.Quantity, &ci.Price,
		&ci.PurchaseID, &ci.URL, &ci.Error, &ci.Status, &ci.TrackingNumber, &ci.TrackingCompany,
	)
	return ci, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", id, err)
	}

	if o.LineItems, err = s.listLineItems(ctx, id); err != nil {
		return nil, err
	}
	if o.CartItems, err = s.ListCartItemsByOrder(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) FindOrderByExternalID(ctx context.Context, shopID, externalID string) (*model.Order, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE shop_id = $1 AND order_id = $2`,
		shopID, externalID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s on shop %s: %w", externalID, shopID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding order %s: %w", externalID, err)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) listLineItems(ctx context.Context, orderID string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, name, image, product_id, variant_id, quantity, price
		FROM line_items WHERE order_id = $1 ORDER BY position`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing line items: %w", err)
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.Name, &li.Image, &li.ProductID, &li.VariantID, &li.Quantity, &li.Price); err != nil {
			return nil, fmt.Errorf("scanning line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, order *model.Order) error {
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("encoding address: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			order.ID, order.OwnerID, order.ShopID, order.OrderID, order.OrderName, order.Email, address, order.Currency,
			order.TotalPrice, order.SubTotalPrice, order.TotalDiscount, order.TotalTax, order.Status, order.CreatedAt, order.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s on shop %s: %w", order.OrderID, order.ShopID, model.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		for i := range order.LineItems {
			li := &order.LineItems[i]
			if li.ID == "" {
				li.ID = uuid.NewString()
			}
			li.OrderID = order.ID
			_, err := tx.ExecContext(ctx,
				`INSERT INTO line_items (id, order_id, name, image, product_id, variant_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				li.ID, li.OrderID, li.Name, li.Image, li.ProductID, li.VariantID, li.Quantity, li.Price,
			)
			if err != nil {
				return fmt.Errorf("inserting line item: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", id, err)
	}
	return expectOneRow(res, "order", id)
}

func (s *Store) ListCartItemsByOrder(ctx context.Context, orderID string) ([]model.CartItem, error) {
	return s.queryCartItems(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE order_id = $1 ORDER BY position`,
		orderID,
	)
}

func (s *Store) FindCartItemsByPurchase(ctx context.Context, channelID, purchaseID string) ([]model.CartItem, error) {
	if purchaseID == "" {
		return nil, nil
	}
	return s.queryCartItems(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE channel_id = $1 AND purchase_id = $2 ORDER BY position`,
		channelID, purchaseID,
	)
}

func (s *Store) queryCartItems(ctx context.Context, query string, args ...any) ([]model.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		ci, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		items = append(items, ci)
	}
	return items, rows.Err()
}

func (s *Store) CreateCartItem(ctx context.Context, item *model.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = model.CartItemStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items (`+cartItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		item.ID, item.OrderID, item.ChannelID, item.Name, item.Image, item.ProductID, item.VariantID, item.Quantity, item.Price,
		item.PurchaseID, item.URL, item.Error, item.Status, item.TrackingNumber, item.TrackingCompany,
	)
	if err != nil {
		return fmt.Errorf("inserting cart item: %w", err)
	}
	return nil
}

func (s *Store) UpdateCartItem(ctx context.Context, item *model.CartItem) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items
		SET purchase_id = $2, url = $3, error = $4, status = $5, tracking_number = $6, tracking_company = $7
		WHERE id = $1`,
		item.ID, item.PurchaseID, item.URL, item.Error, item.Status, item.TrackingNumber, item.TrackingCompany,
	)
	if err != nil {
		return fmt.Errorf("updating cart item %s: %w", item.ID, err)
	}
	return expectOneRow(res, "cart item", item.ID)
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s %s update: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	return nil
}
