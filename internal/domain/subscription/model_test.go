package subscription

import "testing"

func TestContractedCountFallbackOrder(t *testing.T) {
	servingID := "srv-family"
	sub := Subscription{
		RecipeCount:      2,
		DefaultServingID: &servingID,
		Servings: []Serving{
			{ID: "srv-duo", Label: "2 people", RecipeCount: 3},
			{ID: "srv-family", Label: "4 people", RecipeCount: 5},
		},
		ItemCounts: []int{3, 4, 5},
	}

	if got := sub.ContractedCount(); got != 5 {
		t.Fatalf("with default serving: ContractedCount() = %d, want 5", got)
	}

	sub.DefaultServingID = nil
	if got := sub.ContractedCount(); got != 3 {
		t.Fatalf("first serving fallback: ContractedCount() = %d, want 3", got)
	}

	sub.Servings = nil
	if got := sub.ContractedCount(); got != 3 {
		t.Fatalf("item counts fallback: ContractedCount() = %d, want 3", got)
	}

	sub.ItemCounts = nil
	if got := sub.ContractedCount(); got != 2 {
		t.Fatalf("recipe count fallback: ContractedCount() = %d, want 2", got)
	}
}

func TestContractedCountUnknownDefaultServing(t *testing.T) {
	unknown := "srv-gone"
	sub := Subscription{
		DefaultServingID: &unknown,
		Servings:         []Serving{{ID: "srv-duo", RecipeCount: 3}},
	}
	if got := sub.ContractedCount(); got != 3 {
		t.Fatalf("unknown default serving: ContractedCount() = %d, want 3", got)
	}
}
