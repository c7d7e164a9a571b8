// Package cart defines the transactional line-item container for one
// occurrence's order, including the cart lifecycle status machine.
package cart

import (
	"time"

	"github.com/freshplate/menuselect/internal/domain/fulfillment"
)

// Cart holds the line items for one occurrence of one customer. One cart per
// (customer, occurrence); owned by the occurrence binding once created.
type Cart struct {
	ID          string
	BindingID   string
	CustomerID  string
	Status      Status
	Products    []LineItem
	Fulfillment *fulfillment.Info
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineItem is a single product entry on a cart.
type LineItem struct {
	ID        string
	ProductID string
	Quantity  int
	// UnitPrice is in minor currency units.
	UnitPrice int64
	// IsAddOn items do not count toward the contracted recipe quota.
	IsAddOn bool
	// IsAutoAdded marks items placed by the auto-fill machinery.
	IsAutoAdded bool
}

// RecipeCount returns the number of non-add-on line items, counting quantity.
func (c *Cart) RecipeCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Products {
		if item.IsAddOn {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		n += qty
	}
	return n
}

// FindProduct returns the first line item for the given product id.
func (c *Cart) FindProduct(productID string) (LineItem, bool) {
	if c == nil {
		return LineItem{}, false
	}
	for _, item := range c.Products {
		if item.ProductID == productID {
			return item, true
		}
	}
	return LineItem{}, false
}

// Editable reports whether the cart may still be mutated. A nil cart is
// editable: the first add creates it.
func (c *Cart) Editable() bool {
	if c == nil {
		return true
	}
	return c.Status.Editable()
}
