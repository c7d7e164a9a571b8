package gqlclient

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
)

// SelectionEventsSubscription is the live-push subscription for one customer:
// binding, cart and zipcode-config updates emitted after server-side
// mutations settle.
const SelectionEventsSubscription = `
subscription SelectionEvents($customerId: ID!) {
  selectionEvents(customerId: $customerId) {
    kind
    occurrenceId
    binding { id customerId occurrenceId isSkipped isAuto cartId }
    cart {
      id bindingId customerId status
      products { id productId quantity unitPrice isAddOn isAutoAdded }
      fulfillment { type slot { from to } address { line1 city zipcode } }
    }
    zipcodeConfig {
      zipcode timezone
      delivery { startTime endTime }
      pickup { startTime endTime }
      pickupAddress { line1 city zipcode }
    }
  }
}`

// PushEvent is one decoded selectionEvents payload. Exactly one of Binding,
// Cart and ZipcodeConfig is set, matching Kind.
type PushEvent struct {
	Kind          string
	OccurrenceID  string
	Binding       *occurrence.Binding
	Cart          *cart.Cart
	ZipcodeConfig *fulfillment.ZipcodeConfig
}

// ParsePushEvent decodes a selectionEvents node.
func ParsePushEvent(node gjson.Result) PushEvent {
	ev := PushEvent{
		Kind:         node.Get("kind").String(),
		OccurrenceID: node.Get("occurrenceId").String(),
	}
	if b := node.Get("binding"); b.IsObject() {
		binding := parseBinding(b)
		ev.Binding = &binding
	}
	if c := node.Get("cart"); c.IsObject() {
		crt := parseCart(c)
		ev.Cart = &crt
	}
	if z := node.Get("zipcodeConfig"); z.IsObject() {
		cfg := parseZipcodeConfig(z)
		ev.ZipcodeConfig = &cfg
	}
	return ev
}

func parseBinding(node gjson.Result) occurrence.Binding {
	b := occurrence.Binding{
		ID:           node.Get("id").String(),
		CustomerID:   node.Get("customerId").String(),
		OccurrenceID: node.Get("occurrenceId").String(),
		IsSkipped:    node.Get("isSkipped").Bool(),
		IsAuto:       node.Get("isAuto").Bool(),
	}
	if id := node.Get("cartId").String(); id != "" {
		b.CartID = &id
	}
	return b
}

func parseCart(node gjson.Result) cart.Cart {
	c := cart.Cart{
		ID:         node.Get("id").String(),
		BindingID:  node.Get("bindingId").String(),
		CustomerID: node.Get("customerId").String(),
		Status:     cart.ParseStatus(node.Get("status").String()),
	}
	node.Get("products").ForEach(func(_, item gjson.Result) bool {
		c.Products = append(c.Products, cart.LineItem{
			ID:          item.Get("id").String(),
			ProductID:   item.Get("productId").String(),
			Quantity:    int(item.Get("quantity").Int()),
			UnitPrice:   item.Get("unitPrice").Int(),
			IsAddOn:     item.Get("isAddOn").Bool(),
			IsAutoAdded: item.Get("isAutoAdded").Bool(),
		})
		return true
	})
	if f := node.Get("fulfillment"); f.IsObject() {
		info := fulfillment.Info{Type: fulfillment.Mode(f.Get("type").String())}
		if from, err := time.Parse(time.RFC3339, f.Get("slot.from").String()); err == nil {
			info.Slot.From = from
		}
		if to, err := time.Parse(time.RFC3339, f.Get("slot.to").String()); err == nil {
			info.Slot.To = to
		}
		if a := f.Get("address"); a.IsObject() {
			addr := parseAddress(a)
			info.Address = &addr
		}
		c.Fulfillment = &info
	}
	return c
}

func parseZipcodeConfig(node gjson.Result) fulfillment.ZipcodeConfig {
	cfg := fulfillment.ZipcodeConfig{
		Zipcode:  node.Get("zipcode").String(),
		Timezone: node.Get("timezone").String(),
	}
	if w := node.Get("delivery"); w.IsObject() {
		cfg.Delivery = parseWindow(w)
	}
	if w := node.Get("pickup"); w.IsObject() {
		cfg.Pickup = parseWindow(w)
	}
	if a := node.Get("pickupAddress"); a.IsObject() {
		addr := parseAddress(a)
		cfg.PickupAddress = &addr
	}
	return cfg
}

func parseWindow(node gjson.Result) *fulfillment.Window {
	return &fulfillment.Window{
		StartTime: node.Get("startTime").String(),
		EndTime:   node.Get("endTime").String(),
	}
}

func parseAddress(node gjson.Result) fulfillment.Address {
	return fulfillment.Address{
		Line1:   node.Get("line1").String(),
		Line2:   node.Get("line2").String(),
		City:    node.Get("city").String(),
		State:   node.Get("state").String(),
		Country: node.Get("country").String(),
		Zipcode: node.Get("zipcode").String(),
	}
}
