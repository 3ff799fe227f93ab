package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long a delivery id is remembered.
const DefaultDedupTTL = 24 * time.Hour

// deliveryHeaders carry the platform's unique id for one delivery.
// Redeliveries of the same event reuse it.
var deliveryHeaders = []string{
	"X-Shopify-Webhook-Id",
	"X-WC-Webhook-Delivery-ID",
	"X-Wix-Webhook-Id",
}

// DeliveryID returns the delivery id carried by header, or "".
func DeliveryID(header http.Header) string {
	for _, name := range deliveryHeaders {
		if v := header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Deduper remembers which deliveries were already accepted.
type Deduper interface {
	// MarkDelivered reports true when id is seen for the first time.
	MarkDelivered(ctx context.Context, id string) (bool, error)
	// Forget releases id so a redelivery is accepted again.
	Forget(ctx context.Context, id string) error
}

// RedisDeduper shares delivery state across instances with SETNX.
type RedisDeduper struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisDeduper wraps an existing client. Empty prefix and zero ttl
// fall back to defaults.
func NewRedisDeduper(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisDeduper {
	if keyPrefix == "" {
		keyPrefix = "webhook:delivery:"
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (d *RedisDeduper) MarkDelivered(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.keyPrefix+id, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking delivery %s: %w", id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("forgetting delivery %s: %w", id, err)
	}
	return nil
}

var _ Deduper = (*RedisDeduper)(nil)

// MemoryDeduper is the single-instance fallback used when no Redis URL is
// configured. Expired ids are pruned on write.
type MemoryDeduper struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{ttl: ttl, entries: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDeduper) MarkDelivered(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.entries {
		if now.After(exp) {
			delete(d.entries, k)
		}
	}
	if _, seen := d.entries[id]; seen {
		return false, nil
	}
	d.entries[id] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
	return nil
}

var _ Deduper = (*MemoryDeduper)(nil)
