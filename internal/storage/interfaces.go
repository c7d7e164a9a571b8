// Package storage defines the persistence interfaces for occurrences,
// bindings and carts. Implementations live in the memory and postgres
// subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// OccurrenceStore reads the immutable occurrence set for a subscription.
type OccurrenceStore interface {
	PutOccurrences(ctx context.Context, occs []occurrence.Occurrence) error
	ListOccurrences(ctx context.Context, subscriptionID string) ([]occurrence.Occurrence, error)
	GetOccurrence(ctx context.Context, id string) (occurrence.Occurrence, error)
}

// BindingStore persists per-customer-per-occurrence bindings.
type BindingStore interface {
	// UpsertBinding creates or returns the binding keyed by
	// (customer, occurrence). Concurrent calls for the same key must
	// resolve to a single record.
	UpsertBinding(ctx context.Context, b occurrence.Binding) (occurrence.Binding, error)

	// BulkUpsertBindings writes the batch atomically: either every binding
	// is persisted or none is.
	BulkUpsertBindings(ctx context.Context, bs []occurrence.Binding) ([]occurrence.Binding, error)

	GetBinding(ctx context.Context, customerID, occurrenceID string) (occurrence.Binding, error)
	UpdateBinding(ctx context.Context, b occurrence.Binding) (occurrence.Binding, error)
	ListBindings(ctx context.Context, customerID string) ([]occurrence.Binding, error)
}

// CartStore persists carts and their line items.
type CartStore interface {
	CreateCart(ctx context.Context, c cart.Cart) (cart.Cart, error)
	GetCart(ctx context.Context, id string) (cart.Cart, error)
	GetCartByBinding(ctx context.Context, bindingID string) (cart.Cart, error)

	// UpdateCartStatus applies a status transition, rejecting moves not
	// allowed by the cart transition table.
	UpdateCartStatus(ctx context.Context, id string, to cart.Status) (cart.Cart, error)

	SetCartFulfillment(ctx context.Context, id string, info fulfillment.Info) (cart.Cart, error)
	AddLineItem(ctx context.Context, cartID string, item cart.LineItem) (cart.Cart, error)
	RemoveLineItem(ctx context.Context, cartID, lineItemID string) (cart.Cart, error)
}

// Store aggregates the full persistence surface.
type Store interface {
	OccurrenceStore
	BindingStore
	CartStore
}
