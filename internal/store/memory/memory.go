// Package memory is a mutex-guarded in-process Store used in development
// and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"order-router/internal/model"
	"order-router/internal/store"
)

// Store keeps every record in maps keyed by id.
type Store struct {
	mu sync.RWMutex

	platforms    map[string]model.Platform
	shops        map[string]model.Shop
	channels     map[string]model.Channel
	orders       map[string]model.Order
	lineItems    map[string][]model.LineItem
	cartItems    map[string]model.CartItem
	cartOrder    []string
	shopItems    map[string]model.ShopItem
	channelItems map[string]model.ChannelItem
	matches      map[string]model.Match
}

// New returns an empty store.
func New() *Store {
	return &Store{
		platforms:    make(map[string]model.Platform),
		shops:        make(map[string]model.Shop),
		channels:     make(map[string]model.Channel),
		orders:       make(map[string]model.Order),
		lineItems:    make(map[string][]model.LineItem),
		cartItems:    make(map[string]model.CartItem),
		shopItems:    make(map[string]model.ShopItem),
		channelItems: make(map[string]model.ChannelItem),
		matches:      make(map[string]model.Match),
	}
}

// Seed is the on-disk fixture format accepted by LoadSeed.
type Seed struct {
	Platforms []model.Platform `json:"platforms"`
	Shops     []model.Shop     `json:"shops"`
	Channels  []model.Channel  `json:"channels"`
	Orders    []model.Order    `json:"orders"`
}

// LoadSeed reads a JSON seed file into s.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed: %w", err)
	}
	for _, p := range seed.Platforms {
		s.PutPlatform(p)
	}
	for _, sh := range seed.Shops {
		s.PutShop(sh)
	}
	for _, ch := range seed.Channels {
		s.PutChannel(ch)
	}
	for i := range seed.Orders {
		if err := s.CreateOrder(context.Background(), &seed.Orders[i]); err != nil {
			return err
		}
		for j := range seed.Orders[i].CartItems {
			item := seed.Orders[i].CartItems[j]
			item.OrderID = seed.Orders[i].ID
			if err := s.CreateCartItem(context.Background(), &item); err != nil {
				return err
			}
		}
	}
	return nil
}

// PutPlatform inserts or replaces a platform.
func (s *Store) PutPlatform(p model.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[p.ID] = p
}

// PutShop inserts or replaces a shop.
func (s *Store) PutShop(sh model.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh.Platform = nil
	s.shops[sh.ID] = sh
}

// PutChannel inserts or replaces a channel.
func (s *Store) PutChannel(ch model.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch.Platform = nil
	s.channels[ch.ID] = ch
}

func (s *Store) GetPlatform(_ context.Context, id string) (*model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.platforms[id]
	if !ok {
		return nil, fmt.Errorf("platform %s: %w", id, model.ErrPlatformNotFound)
	}
	return &p, nil
}

func (s *Store) GetShop(_ context.Context, id string) (*model.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shops[id]
	if !ok {
		return nil, fmt.Errorf("shop %s: %w", id, model.ErrNotFound)
	}
	p, ok := s.platforms[sh.PlatformID]
	if !ok {
		return nil, fmt.Errorf("shop %s platform %s: %w", id, sh.PlatformID, model.ErrPlatformNotFound)
	}
	sh.Platform = &p
	return &sh, nil
}

func (s *Store) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, model.ErrNotFound)
	}
	p, ok := s.platforms[ch.PlatformID]
	if !ok {
		return nil, fmt.Errorf("channel %s platform %s: %w", id, ch.PlatformID, model.ErrPlatformNotFound)
	}
	ch.Platform = &p
	return &ch, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	o.LineItems = slices.Clone(s.lineItems[id])
	o.CartItems = s.cartItemsLocked(func(ci model.CartItem) bool { return ci.OrderID == id })
	return &o, nil
}

func (s *Store) FindOrderByExternalID(ctx context.Context, shopID, externalID string) (*model.Order, error) {
	s.mu.RLock()
	var id string
	for _, o := range s.orders {
		if o.ShopID == shopID && o.OrderID == externalID {
			id = o.ID
			break
		}
	}
	s.mu.RUnlock()
	if id == "" {
		return nil, fmt.Errorf("order %s on shop %s: %w", externalID, shopID, model.ErrNotFound)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) CreateOrder(_ context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, model.ErrConflict)
	}
	if order.OrderID != "" {
		for _, o := range s.orders {
			if o.ShopID == order.ShopID && o.OrderID == order.OrderID {
				return fmt.Errorf("order %s on shop %s: %w", order.OrderID, order.ShopID, model.ErrConflict)
			}
		}
	}
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	lines := make([]model.LineItem, len(order.LineItems))
	for i, li := range order.LineItems {
		if li.ID == "" {
			li.ID = uuid.NewString()
		}
		li.OrderID = order.ID
		lines[i] = li
	}
	order.LineItems = lines

	stored := *order
	stored.LineItems = nil
	stored.CartItems = nil
	s.orders[order.ID] = stored
	s.lineItems[order.ID] = slices.Clone(lines)
	return nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

// cartItemsLocked returns matching cart items in insertion order.
// Callers hold s.mu.
func (s *Store) cartItemsLocked(keep func(model.CartItem) bool) []model.CartItem {
	var out []model.CartItem
	for _, id := range s.cartOrder {
		ci := s.cartItems[id]
		if keep(ci) {
			out = append(out, ci)
		}
	}
	return out
}

func (s *Store) ListCartItemsByOrder(_ context.Context, orderID string) ([]model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartItemsLocked(func(ci model.CartItem) bool { return ci.OrderID == orderID }), nil
}

func (s *Store) FindCartItemsByPurchase(_ context.Context, channelID, purchaseID string) ([]model.CartItem, error) {
	if purchaseID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartItemsLocked(func(ci model.CartItem) bool {
		return ci.ChannelID == channelID && ci.PurchaseID == purchaseID
	}), nil
}

func (s *Store) CreateCartItem(_ context.Context, item *model.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[item.OrderID]; !ok {
		return fmt.Errorf("order %s: %w", item.OrderID, model.ErrNotFound)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = model.CartItemStatusPending
	}
	stored := *item
	stored.Channel = nil
	if _, exists := s.cartItems[item.ID]; !exists {
		s.cartOrder = append(s.cartOrder, item.ID)
	}
	s.cartItems[item.ID] = stored
	return nil
}

func (s *Store) UpdateCartItem(_ context.Context, item *model.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cartItems[item.ID]
	if !ok {
		return fmt.Errorf("cart item %s: %w", item.ID, model.ErrNotFound)
	}
	cur.PurchaseID = item.PurchaseID
	cur.URL = item.URL
	cur.Error = item.Error
	cur.Status = item.Status
	cur.TrackingNumber = item.TrackingNumber
	cur.TrackingCompany = item.TrackingCompany
	s.cartItems[item.ID] = cur
	return nil
}

func (s *Store) FindShopItem(_ context.Context, ownerID, shopID string, key model.ItemKey) (*model.ShopItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.shopItems {
		if it.OwnerID == ownerID && it.ShopID == shopID && it.Key() == key {
			return &it, nil
		}
	}
	return nil, fmt.Errorf("shop item: %w", model.ErrNotFound)
}

func (s *Store) CreateShopItem(_ context.Context, item *model.ShopItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.shopItems {
		if it.OwnerID == item.OwnerID && it.ShopID == item.ShopID && it.Key() == item.Key() {
			*item = it
			return nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.shopItems[item.ID] = *item
	return nil
}

func (s *Store) FindChannelItem(_ context.Context, ownerID, channelID string, key model.ItemKey) (*model.ChannelItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.channelItems {
		if it.OwnerID == ownerID && it.ChannelID == channelID && it.Key() == key {
			return &it, nil
		}
	}
	return nil, fmt.Errorf("channel item: %w", model.ErrNotFound)
}

func (s *Store) CreateChannelItem(_ context.Context, item *model.ChannelItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.channelItems {
		if it.OwnerID == item.OwnerID && it.ChannelID == item.ChannelID && it.Key() == item.Key() {
			*item = it
			return nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.channelItems[item.ID] = *item
	return nil
}

func (s *Store) FindMatchesCovering(_ context.Context, ownerID string, keys []model.ItemKey) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Match
	for _, m := range s.matches {
		if m.OwnerID == ownerID && m.Covers(keys) {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateMatch(_ context.Context, m *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.matches[m.ID] = cloneMatch(*m)
	return nil
}

func (s *Store) DeleteMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	delete(s.matches, id)
	return nil
}

// ListMatches returns every match of ownerID.
func (s *Store) ListMatches(ownerID string) []model.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Match
	for _, m := range s.matches {
		if m.OwnerID == ownerID {
			out = append(out, cloneMatch(m))
		}
	}
	return out
}

func cloneMatch(m model.Match) model.Match {
	m.Input = slices.Clone(m.Input)
	m.Output = slices.Clone(m.Output)
	return m
}

var _ store.Store = (*Store)(nil)
