package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"order-router/internal/adapter"
	"order-router/internal/match"
	"order-router/internal/model"
	"order-router/internal/reconcile"
	"order-router/internal/store"
)

// EventKind names the webhooks the router accepts.
type EventKind string

const (
	EventChannelCancel   EventKind = "channel.cancel"
	EventChannelTracking EventKind = "channel.tracking"
	EventShopOrderCreate EventKind = "shop.orders.create"
	EventShopOrderCancel EventKind = "shop.orders.cancel"
)

func (k EventKind) fromChannel() bool {
	return k == EventChannelCancel || k == EventChannelTracking
}

// Reconciler applies parsed events to stored orders.
type Reconciler interface {
	CancelPurchase(ctx context.Context, channelID, purchaseID string) (*reconcile.CancelResult, error)
	CancelOrder(ctx context.Context, shopID, externalOrderID string) (*reconcile.CancelResult, error)
	RecordTracking(ctx context.Context, channelID string, t reconcile.Tracking) error
}

// Matcher binds cached routing to a newly ingested order.
type Matcher interface {
	ApplyMatch(ctx context.Context, ownerID, orderID string) (*match.ApplyResult, error)
}

// Receipt is the acknowledgement returned to the sender.
type Receipt struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// Deps wires a Pipeline.
type Deps struct {
	Store      store.Store
	Adapters   adapter.Adapter
	Reconciler Reconciler
	Matcher    Matcher
	Queue      *Queue
	Deduper    Deduper
	Logger     *slog.Logger
}

// Pipeline verifies deliveries and schedules their reconciliation.
type Pipeline struct {
	store      store.Store
	adapters   adapter.Adapter
	reconciler Reconciler
	matcher    Matcher
	queue      *Queue
	dedup      Deduper
	logger     *slog.Logger
}

func NewPipeline(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      d.Store,
		adapters:   d.Adapters,
		reconciler: d.Reconciler,
		matcher:    d.Matcher,
		queue:      d.Queue,
		dedup:      d.Deduper,
		logger:     logger,
	}
}

// Receive verifies body against the connection's platform secret and
// enqueues reconciliation. It returns as soon as the task is queued; what
// the task does later is only logged.
func (p *Pipeline) Receive(ctx context.Context, kind EventKind, connectionID string, body []byte, header http.Header) (*Receipt, error) {
	conn, err := p.connection(ctx, kind, connectionID)
	if err != nil {
		return nil, err
	}
	if err := VerifyRequest(conn.Platform, body, header); err != nil {
		p.logger.Warn("webhook rejected",
			"kind", kind,
			"connection_id", connectionID,
			"error", err,
		)
		return nil, err
	}

	logger := p.logger.With("kind", kind, "connection_id", connectionID)

	deliveryID := DeliveryID(header)
	if deliveryID != "" && p.dedup != nil {
		first, err := p.dedup.MarkDelivered(ctx, deliveryID)
		if err != nil {
			logger.Warn("delivery dedup unavailable", "delivery_id", deliveryID, "error", err)
		} else if !first {
			logger.Info("duplicate delivery acknowledged", "delivery_id", deliveryID)
			return &Receipt{Received: true, Duplicate: true}, nil
		}
	}

	taskID := deliveryID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	task := Task{Kind: kind, ID: taskID, Run: p.task(kind, conn, body, flattenHeaders(header))}

	if err := p.queue.Enqueue(ctx, task); err != nil {
		if deliveryID != "" && p.dedup != nil {
			if ferr := p.dedup.Forget(context.WithoutCancel(ctx), deliveryID); ferr != nil {
				logger.Warn("releasing delivery id", "delivery_id", deliveryID, "error", ferr)
			}
		}
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			return nil, &model.APIError{
				Code:       "WEBHOOK_QUEUE_UNAVAILABLE",
				Message:    "webhook queue is full, retry later",
				StatusCode: http.StatusServiceUnavailable,
				Err:        err,
			}
		}
		return nil, err
	}

	logger.Info("webhook accepted", "task_id", taskID, "bytes", len(body))
	return &Receipt{Received: true}, nil
}

// connection loads the shop or channel the webhook is addressed to,
// with its platform.
func (p *Pipeline) connection(ctx context.Context, kind EventKind, id string) (*model.Connection, error) {
	if kind.fromChannel() {
		ch, err := p.store.GetChannel(ctx, id)
		if err != nil {
			return nil, err
		}
		return &ch.Connection, nil
	}
	shop, err := p.store.GetShop(ctx, id)
	if err != nil {
		return nil, err
	}
	return &shop.Connection, nil
}

func (p *Pipeline) task(kind EventKind, conn *model.Connection, body []byte, headers map[string]string) func(context.Context) error {
	event := &adapter.WebhookEventRequest{Event: json.RawMessage(body), Headers: headers}
	switch kind {
	case EventChannelCancel:
		return func(ctx context.Context) error { return p.channelCancel(ctx, conn, event) }
	case EventChannelTracking:
		return func(ctx context.Context) error { return p.channelTracking(ctx, conn, body) }
	case EventShopOrderCreate:
		return func(ctx context.Context) error { return p.shopOrderCreate(ctx, conn, event) }
	case EventShopOrderCancel:
		return func(ctx context.Context) error { return p.shopOrderCancel(ctx, conn, event) }
	default:
		return func(context.Context) error { return fmt.Errorf("unknown webhook kind %q", kind) }
	}
}

func (p *Pipeline) channelCancel(ctx context.Context, ch *model.Connection, event *adapter.WebhookEventRequest) error {
	ev, err := p.adapters.CancelOrderWebhookHandler(ctx, ch.Platform, event)
	if err != nil {
		return err
	}
	if ev == nil || ev.PurchaseID == "" {
		return errors.New("cancel event carried no purchase id")
	}
	_, err = p.reconciler.CancelPurchase(ctx, ch.ID, ev.PurchaseID)
	return err
}

func (p *Pipeline) channelTracking(ctx context.Context, ch *model.Connection, body []byte) error {
	var t reconcile.Tracking
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("decoding tracking body: %w", err)
	}
	return p.reconciler.RecordTracking(ctx, ch.ID, t)
}

func (p *Pipeline) shopOrderCreate(ctx context.Context, shop *model.Connection, event *adapter.WebhookEventRequest) error {
	in, err := p.adapters.CreateOrderWebhookHandler(ctx, shop.Platform, event)
	if err != nil {
		return err
	}
	if in == nil || in.OrderID == "" {
		return errors.New("order event carried no order id")
	}

	existing, err := p.store.FindOrderByExternalID(ctx, shop.ID, in.OrderID)
	switch {
	case err == nil:
		p.logger.Info("order already ingested", "shop_id", shop.ID, "order_id", existing.ID)
		return nil
	case !errors.Is(err, model.ErrNotFound):
		return err
	}

	order := newOrder(shop, in)
	err = p.store.CreateOrder(ctx, order)
	if errors.Is(err, model.ErrConflict) {
		p.logger.Info("order ingested concurrently", "shop_id", shop.ID, "external_id", in.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("storing order %s: %w", in.OrderID, err)
	}
	p.logger.Info("order ingested",
		"shop_id", shop.ID,
		"order_id", order.ID,
		"external_id", in.OrderID,
		"line_items", len(order.LineItems),
	)
	if len(order.LineItems) == 0 {
		return nil
	}

	res, err := p.matcher.ApplyMatch(ctx, shop.OwnerID, order.ID)
	if errors.Is(err, model.ErrNoMatchFound) {
		p.logger.Info("no cached routing for order", "order_id", order.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying match to order %s: %w", order.ID, err)
	}
	p.logger.Info("cached routing applied", "order_id", order.ID, "match_id", res.MatchID, "cart_items", res.Added)
	return nil
}

func (p *Pipeline) shopOrderCancel(ctx context.Context, shop *model.Connection, event *adapter.WebhookEventRequest) error {
	ev, err := p.adapters.CancelOrderWebhookHandler(ctx, shop.Platform, event)
	if err != nil {
		return err
	}
	if ev == nil || ev.OrderID == "" {
		return errors.New("cancel event carried no order id")
	}
	_, err = p.reconciler.CancelOrder(ctx, shop.ID, ev.OrderID)
	return err
}

func newOrder(shop *model.Connection, in *adapter.IncomingOrder) *model.Order {
	order := &model.Order{
		OwnerID:       shop.OwnerID,
		ShopID:        shop.ID,
		OrderID:       in.OrderID,
		OrderName:     in.OrderName,
		Email:         in.Email,
		Address:       in.Address,
		Currency:      in.Currency,
		TotalPrice:    in.TotalPrice,
		SubTotalPrice: in.SubTotalPrice,
		TotalDiscount: in.TotalDiscount,
		TotalTax:      in.TotalTax,
		Status:        model.OrderStatusPending,
	}
	if in.CreatedAt != nil {
		order.CreatedAt = *in.CreatedAt
	}
	for _, line := range in.LineItems {
		order.LineItems = append(order.LineItems, model.LineItem{
			Name:      line.Name,
			Image:     line.Image,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	return order
}

// flattenHeaders hands adapters lower-cased header names with repeated
// values joined.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
