package cart

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle status of a cart.
type Status int32

const (
	// StatusAbsent indicates no cart exists yet for the binding.
	StatusAbsent Status = iota

	// StatusPending indicates an open cart the customer may still edit.
	StatusPending

	// StatusCartProcess indicates the cart is locked for checkout processing.
	StatusCartProcess

	// StatusOrderPending indicates payment has been initiated.
	StatusOrderPending

	// StatusOrderPlaced indicates payment succeeded and the cart is frozen.
	StatusOrderPlaced

	// StatusCancelled indicates the order was voided.
	StatusCancelled
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "ABSENT"
	case StatusPending:
		return "PENDING"
	case StatusCartProcess:
		return "CART_PROCESS"
	case StatusOrderPending:
		return "ORDER_PENDING"
	case StatusOrderPlaced:
		return "ORDER_PLACED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a wire string to Status.
func ParseStatus(s string) Status {
	switch s {
	case "PENDING":
		return StatusPending
	case "CART_PROCESS":
		return StatusCartProcess
	case "ORDER_PENDING":
		return StatusOrderPending
	case "ORDER_PLACED", "PLACED":
		return StatusOrderPlaced
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	default:
		return StatusAbsent
	}
}

// Editable reports whether line items may still be added or removed.
func (s Status) Editable() bool {
	return s == StatusAbsent || s == StatusPending
}

// ValidTransitions defines allowed cart status transitions.
var ValidTransitions = map[Status][]Status{
	StatusAbsent:       {StatusPending},
	StatusPending:      {StatusCartProcess, StatusCancelled},
	StatusCartProcess:  {StatusOrderPending, StatusPending, StatusCancelled},
	StatusOrderPending: {StatusOrderPlaced, StatusPending, StatusCancelled},
	StatusOrderPlaced:  {},
	StatusCancelled:    {},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to Status) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid cart status transition.
type TransitionError struct {
	From Status
	To   Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid cart status transition: %s -> %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to Status) TransitionError {
	return TransitionError{From: from, To: to}
}
