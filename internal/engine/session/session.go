// Package session holds the shared, session-scoped state object the selection
// engine components coordinate through. One Session exists per customer menu
// flow; it is created when the flow starts and discarded when the customer
// leaves.
//
// Writer discipline: the selector owns the occurrence list and active index,
// the reconciler owns the binding/cart/valid-status fields. Everything else
// reads snapshots.
package session

import (
	"sync"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/domain/subscription"
	"github.com/freshplate/menuselect/internal/engine/events"
)

// Session is the in-memory state shared by the engine components.
type Session struct {
	mu sync.RWMutex

	customerID   string
	subscription subscription.Subscription

	phase       Phase
	occurrences []occurrence.Occurrence
	activeIdx   int

	// weekToken increases on every week switch. Async results carry the
	// token they were issued under and are dropped when it no longer
	// matches.
	weekToken uint64

	binding     *occurrence.Binding
	cart        *cart.Cart
	validStatus occurrence.ValidStatus
	cartState   CartUIState

	// pendingFulfillment is the mode chosen before any cart exists; it is
	// attached when the first add creates the cart.
	pendingFulfillment *fulfillment.Info
	zipcodeConfig      *fulfillment.ZipcodeConfig

	bus *events.Bus
}

// New creates a session for one customer and subscription.
func New(customerID string, sub subscription.Subscription, bus *events.Bus) *Session {
	if bus == nil {
		bus = events.NewBus(0)
	}
	return &Session{
		customerID:   customerID,
		subscription: sub,
		phase:        PhaseUninitialized,
		activeIdx:    -1,
		bus:          bus,
	}
}

// CustomerID returns the session's opaque customer key.
func (s *Session) CustomerID() string {
	return s.customerID
}

// Subscription returns the contract the session measures carts against.
func (s *Session) Subscription() subscription.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscription
}

// Events exposes the session's notify/subscribe bus.
func (s *Session) Events() *events.Bus {
	return s.bus
}

// Subscribe registers a re-render callback for every state change.
func (s *Session) Subscribe(fn func(events.Event)) func() {
	return s.bus.Subscribe(events.Handler(fn))
}

// Token returns the current week token.
func (s *Session) Token() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weekToken
}

// Stale reports whether an async result issued under token should be dropped.
func (s *Session) Stale(token uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return token != s.weekToken
}

// Phase returns the session phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase applies a phase transition, rejecting moves the transition table
// forbids.
func (s *Session) SetPhase(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransitionPhase(s.phase, to) {
		return PhaseTransitionError{From: s.phase, To: to}
	}
	s.phase = to
	return nil
}

// SetOccurrences installs the fetched occurrence list. Selector only.
func (s *Session) SetOccurrences(occs []occurrence.Occurrence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences = append([]occurrence.Occurrence(nil), occs...)
}

// Occurrences returns a copy of the session's occurrence list.
func (s *Session) Occurrences() []occurrence.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]occurrence.Occurrence(nil), s.occurrences...)
}

// VisibleOccurrences returns the picker subset in date order.
func (s *Session) VisibleOccurrences() []occurrence.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visible := make([]occurrence.Occurrence, 0, len(s.occurrences))
	for _, occ := range s.occurrences {
		if occ.IsVisible {
			visible = append(visible, occ)
		}
	}
	return visible
}

// Active returns the active occurrence, if any.
func (s *Session) Active() (occurrence.Occurrence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeIdx < 0 || s.activeIdx >= len(s.occurrences) {
		return occurrence.Occurrence{}, false
	}
	return s.occurrences[s.activeIdx], true
}

// ActivateWeek makes the occurrence at idx active, bumps the week token and
// clears the per-week cart fields. Returns the new token. Selector only.
func (s *Session) ActivateWeek(idx int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeIdx = idx
	s.weekToken++
	s.binding = nil
	s.cart = nil
	s.validStatus = occurrence.ValidStatus{}
	s.cartState = CartIdle
	return s.weekToken
}

// ActiveIndex returns the index of the active occurrence, or -1.
func (s *Session) ActiveIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeIdx
}

// Binding returns a copy of the active week's binding.
func (s *Session) Binding() (occurrence.Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.binding == nil {
		return occurrence.Binding{}, false
	}
	return *s.binding, true
}

// Cart returns a copy of the active week's confirmed cart.
func (s *Session) Cart() (cart.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart == nil {
		return cart.Cart{}, false
	}
	return *s.cart, true
}

// ValidStatus returns the derived validity snapshot.
func (s *Session) ValidStatus() occurrence.ValidStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validStatus
}

// CartState returns the transient save indicator.
func (s *Session) CartState() CartUIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartState
}

// ApplyConfirmed installs confirmed remote state for the active week. The
// write is dropped, and false returned, when token is stale. Reconciler only.
func (s *Session) ApplyConfirmed(token uint64, b *occurrence.Binding, c *cart.Cart, vs occurrence.ValidStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.weekToken {
		return false
	}
	if b != nil {
		copied := *b
		s.binding = &copied
	}
	if c != nil {
		copied := *c
		copied.Products = append([]cart.LineItem(nil), c.Products...)
		s.cart = &copied
	}
	s.validStatus = vs
	return true
}

// SetCartState records the transient save indicator under a token guard.
func (s *Session) SetCartState(token uint64, state CartUIState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.weekToken {
		return false
	}
	s.cartState = state
	return true
}

// SetPendingFulfillment caches a fulfillment choice made before the cart
// exists.
func (s *Session) SetPendingFulfillment(info fulfillment.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := info
	s.pendingFulfillment = &copied
}

// TakePendingFulfillment returns and clears the cached fulfillment choice.
func (s *Session) TakePendingFulfillment() *fulfillment.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.pendingFulfillment
	s.pendingFulfillment = nil
	return info
}

// PendingFulfillment returns the cached choice without clearing it.
func (s *Session) PendingFulfillment() *fulfillment.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pendingFulfillment == nil {
		return nil
	}
	copied := *s.pendingFulfillment
	return &copied
}

// SetZipcodeConfig installs the latest zipcode availability push.
func (s *Session) SetZipcodeConfig(cfg fulfillment.ZipcodeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cfg
	s.zipcodeConfig = &copied
}

// ZipcodeConfig returns the current zipcode availability, if known.
func (s *Session) ZipcodeConfig() (fulfillment.ZipcodeConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.zipcodeConfig == nil {
		return fulfillment.ZipcodeConfig{}, false
	}
	return *s.zipcodeConfig, true
}

// Snapshot is the read model handed to the UI layer.
type Snapshot struct {
	Phase         string                  `json:"phase"`
	WeekToken     uint64                  `json:"weekToken"`
	Active        *occurrence.Occurrence  `json:"activeWeek,omitempty"`
	Occurrences   []occurrence.Occurrence `json:"occurrences"`
	Binding       *occurrence.Binding     `json:"binding,omitempty"`
	Cart          *cart.Cart              `json:"cart,omitempty"`
	ValidStatus   occurrence.ValidStatus  `json:"validStatus"`
	CartState     string                  `json:"cartState"`
	ZipcodeConfig *fulfillment.ZipcodeConfig `json:"zipcodeConfig,omitempty"`
}

// Snapshot returns a consistent copy of the full session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Phase:       s.phase.String(),
		WeekToken:   s.weekToken,
		Occurrences: append([]occurrence.Occurrence(nil), s.occurrences...),
		ValidStatus: s.validStatus,
		CartState:   s.cartState.String(),
	}
	if s.activeIdx >= 0 && s.activeIdx < len(s.occurrences) {
		active := s.occurrences[s.activeIdx]
		snap.Active = &active
	}
	if s.binding != nil {
		b := *s.binding
		snap.Binding = &b
	}
	if s.cart != nil {
		c := *s.cart
		c.Products = append([]cart.LineItem(nil), s.cart.Products...)
		snap.Cart = &c
	}
	if s.zipcodeConfig != nil {
		cfg := *s.zipcodeConfig
		snap.ZipcodeConfig = &cfg
	}
	return snap
}
