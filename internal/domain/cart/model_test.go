package cart

import "testing"

func TestRecipeCount(t *testing.T) {
	c := &Cart{Products: []LineItem{
		{ID: "1", ProductID: "meal-a", Quantity: 2},
		{ID: "2", ProductID: "meal-b", Quantity: 1},
		{ID: "3", ProductID: "dessert", Quantity: 3, IsAddOn: true},
		{ID: "4", ProductID: "meal-c"}, // zero quantity counts as one
	}}
	if got := c.RecipeCount(); got != 4 {
		t.Fatalf("RecipeCount() = %d, want 4", got)
	}
}

func TestRecipeCountNilCart(t *testing.T) {
	var c *Cart
	if got := c.RecipeCount(); got != 0 {
		t.Fatalf("nil cart RecipeCount() = %d, want 0", got)
	}
}

func TestFindProduct(t *testing.T) {
	c := &Cart{Products: []LineItem{
		{ID: "li-1", ProductID: "meal-a"},
		{ID: "li-2", ProductID: "meal-b"},
	}}

	item, ok := c.FindProduct("meal-b")
	if !ok || item.ID != "li-2" {
		t.Fatalf("FindProduct(meal-b) = %+v, %v", item, ok)
	}
	if _, ok := c.FindProduct("meal-z"); ok {
		t.Fatal("expected miss for unknown product")
	}
}

func TestCartEditable(t *testing.T) {
	var nilCart *Cart
	if !nilCart.Editable() {
		t.Fatal("nil cart must be editable: the first add creates it")
	}
	if !(&Cart{Status: StatusPending}).Editable() {
		t.Fatal("pending cart must be editable")
	}
	if (&Cart{Status: StatusOrderPlaced}).Editable() {
		t.Fatal("placed cart must not be editable")
	}
}
