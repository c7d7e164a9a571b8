// Package occurrence defines the fulfillment-week model and the per-customer
// binding that tracks skip state and cart linkage for one week.
package occurrence

import "time"

// Occurrence is one scheduled fulfillment cycle of a subscription. Records are
// immutable once fetched; the full set for a subscription is loaded once per
// session.
type Occurrence struct {
	ID              string
	SubscriptionID  string
	FulfillmentDate time.Time
	// IsValid marks the week as still open for edits and orders.
	IsValid bool
	// IsVisible marks the week as shown in the week picker.
	IsVisible bool
}

// Binding joins a customer to an occurrence. Created lazily the first time a
// customer touches a week; never deleted, only mutated.
type Binding struct {
	ID           string
	CustomerID   string
	OccurrenceID string
	// IsSkipped flags the week as skipped. Skipping never removes an
	// existing cart.
	IsSkipped bool
	// IsAuto records whether the skip was machine initiated (bulk skip of
	// intervening weeks) rather than a user action.
	IsAuto    bool
	CartID    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCart reports whether the binding owns a cart.
func (b Binding) HasCart() bool {
	return b.CartID != nil && *b.CartID != ""
}

// ValidStatus is the derived validity snapshot for a binding's cart, computed
// by the validator after every mutation.
type ValidStatus struct {
	HasCart              bool `json:"hasCart"`
	ItemCountValid       bool `json:"itemCountValid"`
	AddedProductsCount   int  `json:"addedProductsCount"`
	PendingProductsCount int  `json:"pendingProductsCount"`
}
