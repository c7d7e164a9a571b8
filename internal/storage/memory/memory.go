// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It backs unit tests and local sessions where the
// remote data layer is the source of truth and only a confirmed-state cache
// is needed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/storage"
)

type bindingKey struct {
	customerID   string
	occurrenceID string
}

// Store is the in-memory persistence layer. Keeps the implementation simple
// on purpose; every accessor returns deep copies.
type Store struct {
	mu          sync.RWMutex
	occurrences map[string]occurrence.Occurrence
	bindings    map[bindingKey]occurrence.Binding
	carts       map[string]cart.Cart
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		occurrences: make(map[string]occurrence.Occurrence),
		bindings:    make(map[bindingKey]occurrence.Binding),
		carts:       make(map[string]cart.Cart),
	}
}

// OccurrenceStore implementation ---------------------------------------------

func (s *Store) PutOccurrences(_ context.Context, occs []occurrence.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, occ := range occs {
		if occ.ID == "" {
			return fmt.Errorf("occurrence missing id")
		}
		s.occurrences[occ.ID] = occ
	}
	return nil
}

func (s *Store) ListOccurrences(_ context.Context, subscriptionID string) ([]occurrence.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]occurrence.Occurrence, 0, len(s.occurrences))
	for _, occ := range s.occurrences {
		if occ.SubscriptionID == subscriptionID {
			result = append(result, occ)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FulfillmentDate.Before(result[j].FulfillmentDate)
	})
	return result, nil
}

func (s *Store) GetOccurrence(_ context.Context, id string) (occurrence.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	occ, ok := s.occurrences[id]
	if !ok {
		return occurrence.Occurrence{}, fmt.Errorf("occurrence %s: %w", id, storage.ErrNotFound)
	}
	return occ, nil
}

// BindingStore implementation ------------------------------------------------

func (s *Store) UpsertBinding(_ context.Context, b occurrence.Binding) (occurrence.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertBindingLocked(b)
}

func (s *Store) upsertBindingLocked(b occurrence.Binding) (occurrence.Binding, error) {
	if b.CustomerID == "" || b.OccurrenceID == "" {
		return occurrence.Binding{}, fmt.Errorf("binding requires customer and occurrence ids")
	}

	key := bindingKey{customerID: b.CustomerID, occurrenceID: b.OccurrenceID}
	if existing, ok := s.bindings[key]; ok {
		return existing, nil
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.bindings[key] = b
	return b, nil
}

func (s *Store) BulkUpsertBindings(_ context.Context, bs []occurrence.Binding) ([]occurrence.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching state so a bad entry cannot
	// leave a partial write behind.
	for _, b := range bs {
		if b.CustomerID == "" || b.OccurrenceID == "" {
			return nil, fmt.Errorf("binding requires customer and occurrence ids")
		}
	}

	result := make([]occurrence.Binding, 0, len(bs))
	for _, b := range bs {
		saved, err := s.upsertBindingLocked(b)
		if err != nil {
			return nil, err
		}
		result = append(result, saved)
	}
	return result, nil
}

func (s *Store) GetBinding(_ context.Context, customerID, occurrenceID string) (occurrence.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[bindingKey{customerID: customerID, occurrenceID: occurrenceID}]
	if !ok {
		return occurrence.Binding{}, fmt.Errorf("binding for customer %s occurrence %s: %w",
			customerID, occurrenceID, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) UpdateBinding(_ context.Context, b occurrence.Binding) (occurrence.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey{customerID: b.CustomerID, occurrenceID: b.OccurrenceID}
	original, ok := s.bindings[key]
	if !ok {
		return occurrence.Binding{}, fmt.Errorf("binding %s: %w", b.ID, storage.ErrNotFound)
	}

	b.ID = original.ID
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	s.bindings[key] = b
	return b, nil
}

func (s *Store) ListBindings(_ context.Context, customerID string) ([]occurrence.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]occurrence.Binding, 0)
	for _, b := range s.bindings {
		if b.CustomerID == customerID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OccurrenceID < result[j].OccurrenceID })
	return result, nil
}

// CartStore implementation ---------------------------------------------------

func (s *Store) CreateCart(_ context.Context, c cart.Cart) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.BindingID == "" {
		return cart.Cart{}, fmt.Errorf("cart requires an owning binding")
	}
	for _, existing := range s.carts {
		if existing.BindingID == c.BindingID {
			return cart.Cart{}, fmt.Errorf("binding %s already owns cart %s", c.BindingID, existing.ID)
		}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == cart.StatusAbsent {
		c.Status = cart.StatusPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Products = cloneItems(c.Products)

	s.carts[c.ID] = c
	return cloneCart(c), nil
}

func (s *Store) GetCart(_ context.Context, id string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[id]
	if !ok {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", id, storage.ErrNotFound)
	}
	return cloneCart(c), nil
}

func (s *Store) GetCartByBinding(_ context.Context, bindingID string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.carts {
		if c.BindingID == bindingID {
			return cloneCart(c), nil
		}
	}
	return cart.Cart{}, fmt.Errorf("cart for binding %s: %w", bindingID, storage.ErrNotFound)
}

func (s *Store) UpdateCartStatus(_ context.Context, id string, to cart.Status) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[id]
	if !ok {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", id, storage.ErrNotFound)
	}
	if !cart.CanTransition(c.Status, to) {
		return cart.Cart{}, cart.NewTransitionError(c.Status, to)
	}

	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	s.carts[id] = c
	return cloneCart(c), nil
}

func (s *Store) SetCartFulfillment(_ context.Context, id string, info fulfillment.Info) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[id]
	if !ok {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", id, storage.ErrNotFound)
	}

	infoCopy := info
	c.Fulfillment = &infoCopy
	c.UpdatedAt = time.Now().UTC()
	s.carts[id] = c
	return cloneCart(c), nil
}

func (s *Store) AddLineItem(_ context.Context, cartID string, item cart.LineItem) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", cartID, storage.ErrNotFound)
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	c.Products = append(cloneItems(c.Products), item)
	c.UpdatedAt = time.Now().UTC()
	s.carts[cartID] = c
	return cloneCart(c), nil
}

func (s *Store) RemoveLineItem(_ context.Context, cartID, lineItemID string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", cartID, storage.ErrNotFound)
	}

	items := cloneItems(c.Products)
	for i, item := range items {
		if item.ID == lineItemID {
			c.Products = append(items[:i], items[i+1:]...)
			c.UpdatedAt = time.Now().UTC()
			s.carts[cartID] = c
			return cloneCart(c), nil
		}
	}
	return cart.Cart{}, fmt.Errorf("line item %s on cart %s: %w", lineItemID, cartID, storage.ErrNotFound)
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Products = cloneItems(c.Products)
	if c.Fulfillment != nil {
		info := *c.Fulfillment
		c.Fulfillment = &info
	}
	return c
}

func cloneItems(items []cart.LineItem) []cart.LineItem {
	if items == nil {
		return nil
	}
	return append([]cart.LineItem(nil), items...)
}
