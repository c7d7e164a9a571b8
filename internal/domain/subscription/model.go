// Package subscription defines the customer's meal-box contract consumed by
// the selection engine.
package subscription

// Serving is one serving-size option offered by a plan.
type Serving struct {
	ID          string
	Label       string
	RecipeCount int
}

// Subscription is the contract the validator measures carts against. Only the
// fields the selection engine reads are modeled here.
type Subscription struct {
	ID         string
	CustomerID string
	// RecipeCount is the contracted number of recipes per week.
	RecipeCount int
	// DefaultServingID optionally names the serving the customer picked.
	DefaultServingID *string
	Servings         []Serving
	// ItemCounts lists the plan's offered weekly recipe counts, smallest
	// first. Used as the last fallback when no serving is configured.
	ItemCounts []int
}

// ContractedCount resolves the weekly recipe quota. Fallback order: the
// explicit default serving, then the first serving, then the first offered
// item count, then RecipeCount itself.
func (s Subscription) ContractedCount() int {
	if s.DefaultServingID != nil {
		for _, srv := range s.Servings {
			if srv.ID == *s.DefaultServingID {
				return srv.RecipeCount
			}
		}
	}
	if len(s.Servings) > 0 {
		return s.Servings[0].RecipeCount
	}
	if len(s.ItemCounts) > 0 {
		return s.ItemCounts[0]
	}
	return s.RecipeCount
}
