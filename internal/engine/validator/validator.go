// Package validator computes the derived validity flags for a week's binding
// and cart. Every function is pure; the reconciler recomputes after each
// mutation and the selector on every week switch.
package validator

import (
	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
)

// ValidStatus derives the validity snapshot for a binding's cart against the
// contracted weekly recipe count.
func ValidStatus(c *cart.Cart, contractedCount int) occurrence.ValidStatus {
	added := c.RecipeCount()
	pending := contractedCount - added
	if pending < 0 {
		pending = 0
	}
	return occurrence.ValidStatus{
		HasCart:              c != nil,
		AddedProductsCount:   added,
		PendingProductsCount: pending,
		ItemCountValid:       added == contractedCount,
	}
}

// CanEdit reports whether the week's binding may be mutated: the occurrence
// must still be valid and the cart, when present, must be in an editable
// status.
func CanEdit(week occurrence.Occurrence, c *cart.Cart) bool {
	return week.IsValid && c.Editable()
}

// CanRemove reports whether a line item may be removed. Same rule as CanEdit;
// named separately because callers gate removals explicitly.
func CanRemove(week occurrence.Occurrence, c *cart.Cart) bool {
	return CanEdit(week, c)
}

// CanSkip reports whether the week may be toggled skipped. noSkip is the
// plan-level flag forbidding skips.
func CanSkip(week occurrence.Occurrence, c *cart.Cart, noSkip bool) bool {
	return CanEdit(week, c) && !noSkip
}

// WouldOverfill reports whether adding a non-add-on item would exceed the
// contracted count. The UI warns and blocks on this; the reconciler stays
// permissive so corrective removals can still reach the server.
func WouldOverfill(c *cart.Cart, contractedCount int, isAddOn bool) bool {
	if isAddOn {
		return false
	}
	return c.RecipeCount() >= contractedCount
}
