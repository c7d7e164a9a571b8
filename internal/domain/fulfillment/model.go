// Package fulfillment defines delivery/pickup modes, time windows and the
// resolved fulfillment record attached to a cart.
package fulfillment

import (
	"fmt"
	"time"
)

// Mode distinguishes delivery and pickup fulfillment.
type Mode string

const (
	ModeDelivery Mode = "DELIVERY"
	ModePickup   Mode = "PICKUP"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeDelivery || m == ModePickup
}

// Slot is a concrete time window on the fulfillment date.
type Slot struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Address is the normalized postal record consumed from the address
// collaborator. The engine never interprets it beyond the zipcode.
type Address struct {
	Line1   string  `json:"line1"`
	Line2   string  `json:"line2,omitempty"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	Country string  `json:"country"`
	Zipcode string  `json:"zipcode"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// Info is the resolved fulfillment for one cart: the mode, the concrete slot
// and, for delivery, the destination address.
type Info struct {
	Type    Mode     `json:"type"`
	Slot    Slot     `json:"slot"`
	Address *Address `json:"address,omitempty"`
}

// Window is a configured time-of-day window for a zipcode. Times use the
// "15:04" clock format and are combined with the occurrence's fulfillment
// date during resolution.
type Window struct {
	StartTime string `json:"startTime" yaml:"start_time"`
	EndTime   string `json:"endTime" yaml:"end_time"`
}

// ZipcodeConfig is the per-zipcode availability pushed by the data layer. A
// nil window means the mode is not offered in that zipcode.
type ZipcodeConfig struct {
	Zipcode  string  `json:"zipcode"`
	Timezone string  `json:"timezone"`
	Delivery *Window `json:"delivery,omitempty"`
	Pickup   *Window `json:"pickup,omitempty"`
	// PickupAddress is the depot location offered when Pickup is set.
	PickupAddress *Address `json:"pickupAddress,omitempty"`
}

// WindowFor returns the configured window for the requested mode.
func (zc ZipcodeConfig) WindowFor(mode Mode) *Window {
	switch mode {
	case ModeDelivery:
		return zc.Delivery
	case ModePickup:
		return zc.Pickup
	default:
		return nil
	}
}

// UnavailableError reports that a zipcode offers no window for the requested
// mode.
type UnavailableError struct {
	Zipcode string
	Mode    Mode
}

// Error implements error.
func (e UnavailableError) Error() string {
	return fmt.Sprintf("fulfillment mode %s unavailable for zipcode %s", e.Mode, e.Zipcode)
}
