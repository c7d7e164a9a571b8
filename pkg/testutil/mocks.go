// Package testutil provides common testing utilities and mock collaborators
// for the selection engine.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/storage"
)

// ErrInjected is the failure injected by the fault-wrapping stores.
var ErrInjected = errors.New("injected failure")

// StaticSource serves a fixed occurrence list, optionally delayed so tests
// can interleave week switches with in-flight fetches.
type StaticSource struct {
	mu          sync.Mutex
	Occurrences []occurrence.Occurrence
	Err         error
	Delay       time.Duration
	calls       int
}

// FetchOccurrences implements the selector source contract.
func (s *StaticSource) FetchOccurrences(ctx context.Context, _ string, _ *time.Time) ([]occurrence.Occurrence, error) {
	s.mu.Lock()
	s.calls++
	delay := s.Delay
	err := s.Err
	occs := append([]occurrence.Occurrence(nil), s.Occurrences...)
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return occs, nil
}

// Calls returns how many fetches were issued.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FaultyStore wraps a Store and fails selected operations.
type FaultyStore struct {
	storage.Store

	mu               sync.Mutex
	FailBulkUpsert   bool
	FailAddLineItem  bool
	FailUpsert       bool
	bulkUpsertCalls  int
	addLineItemCalls int
}

// NewFaultyStore wraps inner with failure injection switches.
func NewFaultyStore(inner storage.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

// BulkUpsertBindings fails atomically when FailBulkUpsert is set.
func (f *FaultyStore) BulkUpsertBindings(ctx context.Context, bs []occurrence.Binding) ([]occurrence.Binding, error) {
	f.mu.Lock()
	f.bulkUpsertCalls++
	fail := f.FailBulkUpsert
	f.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return f.Store.BulkUpsertBindings(ctx, bs)
}

// UpsertBinding fails when FailUpsert is set.
func (f *FaultyStore) UpsertBinding(ctx context.Context, b occurrence.Binding) (occurrence.Binding, error) {
	f.mu.Lock()
	fail := f.FailUpsert
	f.mu.Unlock()

	if fail {
		return occurrence.Binding{}, ErrInjected
	}
	return f.Store.UpsertBinding(ctx, b)
}

// AddLineItem fails when FailAddLineItem is set.
func (f *FaultyStore) AddLineItem(ctx context.Context, cartID string, item cart.LineItem) (cart.Cart, error) {
	f.mu.Lock()
	f.addLineItemCalls++
	fail := f.FailAddLineItem
	f.mu.Unlock()

	if fail {
		return cart.Cart{}, ErrInjected
	}
	return f.Store.AddLineItem(ctx, cartID, item)
}

// BulkUpsertCalls reports how many batch writes were attempted.
func (f *FaultyStore) BulkUpsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bulkUpsertCalls
}

// BlockingStore wraps a Store and parks AddLineItem calls on a gate so tests
// can interleave other work with an in-flight mutation.
type BlockingStore struct {
	storage.Store

	// Entered is closed (via sync.Once) when the first AddLineItem arrives.
	Entered chan struct{}
	// Release must be closed to let parked AddLineItem calls proceed.
	Release chan struct{}

	enterOnce sync.Once
}

// NewBlockingStore wraps inner with an AddLineItem gate.
func NewBlockingStore(inner storage.Store) *BlockingStore {
	return &BlockingStore{
		Store:   inner,
		Entered: make(chan struct{}),
		Release: make(chan struct{}),
	}
}

// AddLineItem signals entry, waits for Release, then delegates.
func (b *BlockingStore) AddLineItem(ctx context.Context, cartID string, item cart.LineItem) (cart.Cart, error) {
	b.enterOnce.Do(func() { close(b.Entered) })
	<-b.Release
	return b.Store.AddLineItem(ctx, cartID, item)
}

// WeekSpec is a compact description of one occurrence for test setup.
type WeekSpec struct {
	ID      string
	Date    string // YYYY-MM-DD
	Valid   bool
	Visible bool
}

// Weeks converts specs into occurrences for subscription subID.
func Weeks(subID string, specs ...WeekSpec) []occurrence.Occurrence {
	occs := make([]occurrence.Occurrence, 0, len(specs))
	for _, spec := range specs {
		date, _ := time.Parse("2006-01-02", spec.Date)
		occs = append(occs, occurrence.Occurrence{
			ID:              spec.ID,
			SubscriptionID:  subID,
			FulfillmentDate: date,
			IsValid:         spec.Valid,
			IsVisible:       spec.Visible,
		})
	}
	return occs
}
