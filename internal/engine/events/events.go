// Package events provides the notify/subscribe channel between the selection
// engine and its consumers. The UI layer subscribes for re-render triggers;
// the engine records every state change as a structured event.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type classifies the kind of engine event.
type Type string

const (
	// Selector events
	EventOccurrencesLoaded Type = "selector.occurrences_loaded"
	EventOccurrencesEmpty  Type = "selector.occurrences_empty"
	EventWeekSelected      Type = "selector.week_selected"
	EventWeekAdvanced      Type = "selector.week_advanced"

	// Reconciler events
	EventBindingEnsured   Type = "reconciler.binding_ensured"
	EventCartCreated      Type = "reconciler.cart_created"
	EventProductAdded     Type = "reconciler.product_added"
	EventProductRemoved   Type = "reconciler.product_removed"
	EventMutationFailed   Type = "reconciler.mutation_failed"
	EventCartStateChanged Type = "reconciler.cart_state_changed"
	EventStaleDropped     Type = "reconciler.stale_response_dropped"

	// Validator events
	EventValidStatusChanged Type = "validator.valid_status_changed"

	// Fulfillment events
	EventFulfillmentSet     Type = "fulfillment.set"
	EventFulfillmentPending Type = "fulfillment.pending"

	// Skip coordinator events
	EventWeekSkipped     Type = "skipper.week_skipped"
	EventRangeSkipped    Type = "skipper.range_skipped"
	EventRangeSkipFailed Type = "skipper.range_skip_failed"

	// Push channel events
	EventPushApplied Type = "push.applied"
	EventPushDropped Type = "push.dropped"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one structured engine occurrence.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	// OccurrenceID names the week the event concerns, when applicable.
	OccurrenceID string `json:"occurrenceId,omitempty"`
	// WeekToken is the session week token the event was issued under.
	WeekToken uint64 `json:"weekToken,omitempty"`

	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Handler processes events as they occur.
type Handler func(Event)

// Filter decides whether an event reaches a handler.
type Filter func(Event) bool

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// Bus is a thread-safe event fan-out with a bounded history ring.
type Bus struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64

	published atomic.Int64
}

// NewBus creates an event bus retaining the last size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		events: make([]Event, size),
		size:   size,
	}
}

// Publish records an event and notifies subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	b.events[b.head] = event
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}

	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	b.published.Add(1)

	// Notify outside the lock so handlers may publish follow-up events.
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// Subscribe registers a handler for all events. The returned func
// unsubscribes.
func (b *Bus) Subscribe(handler Handler) func() {
	return b.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler gated by a filter.
func (b *Bus) SubscribeFiltered(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent n events, newest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[i] = b.events[idx]
	}
	return result
}

// RecentByType returns recent events of one type, newest first.
func (b *Bus) RecentByType(t Type, n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}

	result := make([]Event, 0, n)
	for i := 0; i < b.count && len(result) < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		if b.events[idx].Type == t {
			result = append(result, b.events[idx])
		}
	}
	return result
}

// Published returns the total number of events published.
func (b *Bus) Published() int64 {
	return b.published.Load()
}
