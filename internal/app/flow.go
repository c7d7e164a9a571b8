package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/freshplate/menuselect/internal/cache"
	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/domain/subscription"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/reconciler"
	"github.com/freshplate/menuselect/internal/engine/resolver"
	"github.com/freshplate/menuselect/internal/engine/selector"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/internal/engine/skipper"
	"github.com/freshplate/menuselect/internal/engine/validator"
	"github.com/freshplate/menuselect/internal/metrics"
	"github.com/freshplate/menuselect/internal/storage"
	"github.com/freshplate/menuselect/pkg/logger"
)

// Flow bundles the engine components for one customer's menu-selection
// session. It is the single entry point the UI layer talks to.
type Flow struct {
	ID string

	sess       *session.Session
	selector   *selector.Selector
	reconciler *reconciler.Reconciler
	resolver   *resolver.Resolver
	skipper    *skipper.Coordinator

	createdAt time.Time
}

// FlowDeps carries the shared collaborators a Flow is built from.
type FlowDeps struct {
	Store   storage.Store
	Source  selector.Source
	Cache   cache.OccurrenceCache
	Metrics *metrics.Collector
	Log     *logger.Logger
}

// NewFlow wires a session and its engine components for one customer.
func NewFlow(customerID string, sub subscription.Subscription, deps FlowDeps) *Flow {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("flow")
	}

	sess := session.New(customerID, sub, events.NewBus(0))
	rec := reconciler.New(sess, deps.Store, log.Component("reconciler"), deps.Metrics)

	var selCache selector.Cache
	if deps.Cache != nil {
		selCache = deps.Cache
	}

	return &Flow{
		ID:         uuid.NewString(),
		sess:       sess,
		selector:   selector.New(sess, deps.Source, selCache, log.Component("selector")),
		reconciler: rec,
		resolver:   resolver.New(sess, rec, log.Component("resolver")),
		skipper:    skipper.New(sess, deps.Store, log.Component("skipper")),
		createdAt:  time.Now().UTC(),
	}
}

// Session exposes the underlying state object for read access.
func (f *Flow) Session() *session.Session {
	return f.sess
}

// Subscribe registers a re-render callback.
func (f *Flow) Subscribe(fn func(events.Event)) func() {
	return f.sess.Subscribe(fn)
}

// Snapshot returns the UI read model.
func (f *Flow) Snapshot() session.Snapshot {
	return f.sess.Snapshot()
}

// Load performs the initial occurrence fetch and week selection, then pulls
// the week's binding and cart into the session.
func (f *Flow) Load(ctx context.Context, subscriptionID string, pinDate *time.Time) error {
	if err := f.selector.Load(ctx, subscriptionID, pinDate); err != nil {
		return err
	}
	return f.reconciler.RefreshWeek(ctx)
}

// SelectWeek activates a specific occurrence and refreshes its cart state.
func (f *Flow) SelectWeek(ctx context.Context, occurrenceID string) (occurrence.Occurrence, error) {
	occ, err := f.selector.Select(occurrenceID)
	if err != nil {
		return occurrence.Occurrence{}, err
	}
	return occ, f.reconciler.RefreshWeek(ctx)
}

// Advance cycles the active week through the visible picker subset.
func (f *Flow) Advance(ctx context.Context, dir selector.Direction) (occurrence.Occurrence, error) {
	occ, err := f.selector.Advance(dir)
	if err != nil {
		return occurrence.Occurrence{}, err
	}
	return occ, f.reconciler.RefreshWeek(ctx)
}

// AddProduct adds a line item to the active week's cart.
func (f *Flow) AddProduct(ctx context.Context, item cart.LineItem) error {
	return f.reconciler.AddProduct(ctx, item)
}

// RemoveProduct removes a line item from the active week's cart.
func (f *Flow) RemoveProduct(ctx context.Context, lineItemID string) error {
	return f.reconciler.RemoveProduct(ctx, lineItemID)
}

// SetFulfillment resolves and applies a fulfillment mode for the active week.
func (f *Flow) SetFulfillment(mode fulfillment.Mode, addr *fulfillment.Address) error {
	return f.resolver.SetFulfillment(mode, addr)
}

// ToggleSkip flips the active week's skip flag.
func (f *Flow) ToggleSkip(ctx context.Context, noSkip bool) error {
	return f.reconciler.ToggleSkip(ctx, noSkip)
}

// SkipUpTo bulk-skips every week before the given occurrence.
func (f *Flow) SkipUpTo(ctx context.Context, occurrenceID string) ([]occurrence.Binding, error) {
	return f.skipper.SkipUpTo(ctx, occurrenceID)
}

// ApplyPush folds a data-layer push into the session.
func (f *Flow) ApplyPush(p reconciler.Push) {
	f.reconciler.ApplyPush(p)
}

// CanAdd reports whether adding a non-add-on product would stay within the
// contracted count. The UI warns on false; the engine stays permissive.
func (f *Flow) CanAdd(isAddOn bool) bool {
	var c *cart.Cart
	if current, ok := f.sess.Cart(); ok {
		c = &current
	}
	return !validator.WouldOverfill(c, f.sess.Subscription().ContractedCount(), isAddOn)
}
