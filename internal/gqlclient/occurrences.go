package gqlclient

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/domain/subscription"
)

const occurrencesQuery = `
query Occurrences($subscriptionId: ID!, $filterDate: Date) {
  occurrences(subscriptionId: $subscriptionId, filterDate: $filterDate) {
    id
    subscriptionId
    fulfillmentDate
    isValid
    isVisible
  }
}`

const subscriptionQuery = `
query Subscription($id: ID!) {
  subscription(id: $id) {
    id
    customerId
    recipeCount
    defaultServingId
    servings { id label recipeCount }
    itemCounts
  }
}`

// FetchOccurrences loads the occurrence set for a subscription, optionally
// pinned to one fulfillment date. Implements the selector's Source contract.
func (c *Client) FetchOccurrences(ctx context.Context, subscriptionID string, pinDate *time.Time) ([]occurrence.Occurrence, error) {
	variables := map[string]any{"subscriptionId": subscriptionID}
	if pinDate != nil {
		variables["filterDate"] = pinDate.Format("2006-01-02")
	}

	data, err := c.Do(ctx, "Occurrences", occurrencesQuery, variables)
	if err != nil {
		return nil, err
	}

	var result []occurrence.Occurrence
	data.Get("occurrences").ForEach(func(_, item gjson.Result) bool {
		occ := occurrence.Occurrence{
			ID:             item.Get("id").String(),
			SubscriptionID: item.Get("subscriptionId").String(),
			IsValid:        item.Get("isValid").Bool(),
			IsVisible:      item.Get("isVisible").Bool(),
		}
		if raw := item.Get("fulfillmentDate").String(); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				occ.FulfillmentDate = t
			} else if t, err := time.Parse("2006-01-02", raw); err == nil {
				occ.FulfillmentDate = t
			}
		}
		result = append(result, occ)
		return true
	})
	return result, nil
}

// FetchSubscription loads the contract the validator measures carts against.
// Optional fields stay nil when the API omits them; the fallback order is
// resolved in the domain model, not here.
func (c *Client) FetchSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	data, err := c.Do(ctx, "Subscription", subscriptionQuery, map[string]any{"id": id})
	if err != nil {
		return subscription.Subscription{}, err
	}

	node := data.Get("subscription")
	sub := subscription.Subscription{
		ID:          node.Get("id").String(),
		CustomerID:  node.Get("customerId").String(),
		RecipeCount: int(node.Get("recipeCount").Int()),
	}
	if ds := node.Get("defaultServingId"); ds.Exists() && ds.String() != "" {
		v := ds.String()
		sub.DefaultServingID = &v
	}
	node.Get("servings").ForEach(func(_, s gjson.Result) bool {
		sub.Servings = append(sub.Servings, subscription.Serving{
			ID:          s.Get("id").String(),
			Label:       s.Get("label").String(),
			RecipeCount: int(s.Get("recipeCount").Int()),
		})
		return true
	})
	node.Get("itemCounts").ForEach(func(_, n gjson.Result) bool {
		sub.ItemCounts = append(sub.ItemCounts, int(n.Int()))
		return true
	})
	return sub, nil
}
