// Package reconciler maps local add/remove intents onto remote cart
// mutations and keeps the session's confirmed-state cache in sync. All
// mutations for one week run through a FIFO queue, and every async result is
// gated on the session week token so a slow response for an abandoned week
// can never overwrite newer state.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/internal/engine/validator"
	"github.com/freshplate/menuselect/internal/metrics"
	"github.com/freshplate/menuselect/internal/storage"
	"github.com/freshplate/menuselect/pkg/logger"
)

// Reconciler coordinates binding and cart mutations for the active week.
type Reconciler struct {
	sess    *session.Session
	store   storage.Store
	log     *logger.Logger
	metrics *metrics.Collector
	queues  *queueSet
}

// New creates a Reconciler bound to a session. metrics may be nil.
func New(sess *session.Session, store storage.Store, log *logger.Logger, collector *metrics.Collector) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		sess:    sess,
		store:   store,
		log:     log,
		metrics: collector,
		queues:  newQueueSet(),
	}
}

// EnsureBinding creates the (customer, week) binding when missing and caches
// it on the session. Idempotent: the storage upsert is keyed on the pair, so
// concurrent calls resolve to one record. A fresh binding for an already
// closed week starts skipped.
func (r *Reconciler) EnsureBinding(ctx context.Context) (occurrence.Binding, error) {
	week, ok := r.sess.Active()
	if !ok {
		return occurrence.Binding{}, engine.NewValidationError("no active week")
	}
	token := r.sess.Token()

	if b, ok := r.sess.Binding(); ok {
		return b, nil
	}

	b, err := r.store.UpsertBinding(ctx, occurrence.Binding{
		CustomerID:   r.sess.CustomerID(),
		OccurrenceID: week.ID,
		IsSkipped:    !week.IsValid,
		IsAuto:       false,
	})
	if err != nil {
		return occurrence.Binding{}, engine.NewNetworkError("ensure binding", err)
	}

	if !r.applyBinding(token, b) {
		// The customer moved on while the upsert was in flight. The
		// record exists server-side; only the local cache write is
		// dropped.
		return b, nil
	}

	r.sess.Events().Publish(events.Event{
		Type:         events.EventBindingEnsured,
		OccurrenceID: week.ID,
		WeekToken:    token,
	})
	return b, nil
}

// applyBinding installs confirmed binding (and cart, when linked) state under
// the token guard, recomputing the derived validity.
func (r *Reconciler) applyBinding(token uint64, b occurrence.Binding) bool {
	var c *cart.Cart
	if current, ok := r.sess.Cart(); ok {
		c = &current
	}
	vs := validator.ValidStatus(c, r.sess.Subscription().ContractedCount())
	applied := r.sess.ApplyConfirmed(token, &b, c, vs)
	if !applied {
		r.noteStale(b.OccurrenceID, token)
	}
	return applied
}

// AddProduct inserts a line item into the active week's cart, creating the
// binding and cart first when absent. The add is confirmed remotely before
// any local state changes. Over-adding is not rejected here: the UI warns via
// validator.WouldOverfill, and staying permissive keeps corrective removals
// consistent server-side.
func (r *Reconciler) AddProduct(ctx context.Context, item cart.LineItem) error {
	week, ok := r.sess.Active()
	if !ok {
		return engine.NewValidationError("no active week")
	}
	if current, hasCart := r.sess.Cart(); hasCart && !validator.CanEdit(week, &current) {
		return engine.NewValidationError("week %s is closed for edits", week.ID)
	}
	if !week.IsValid {
		return engine.NewValidationError("week %s is no longer orderable", week.ID)
	}

	token := r.sess.Token()
	var opErr error

	r.enqueue(week.ID, func() {
		start := time.Now()
		r.sess.SetCartState(token, session.CartSaving)

		opErr = r.addProductLocked(ctx, week, token, item)

		result := "ok"
		if opErr != nil {
			result = "error"
			r.sess.SetCartState(token, session.CartError)
			r.sess.Events().Publish(events.Event{
				Type:         events.EventMutationFailed,
				Severity:     events.SeverityError,
				OccurrenceID: week.ID,
				WeekToken:    token,
				Error:        opErr.Error(),
				Fields:       map[string]string{"op": "add_product"},
			})
		} else {
			r.sess.SetCartState(token, session.CartSaved)
		}
		r.metrics.ObserveMutation("add_product", result, time.Since(start))
	})
	return opErr
}

func (r *Reconciler) addProductLocked(ctx context.Context, week occurrence.Occurrence, token uint64, item cart.LineItem) error {
	binding, err := r.EnsureBinding(ctx)
	if err != nil {
		return err
	}

	var current cart.Cart
	if binding.HasCart() {
		current, err = r.store.GetCart(ctx, *binding.CartID)
		if err != nil {
			return engine.NewNetworkError("fetch cart", err)
		}
		if !current.Status.Editable() {
			return engine.NewValidationError("cart %s is not editable (%s)", current.ID, current.Status)
		}
	} else {
		current, err = r.createCart(ctx, week, binding)
		if err != nil {
			return err
		}
		binding.CartID = &current.ID
		binding, err = r.store.UpdateBinding(ctx, binding)
		if err != nil {
			return engine.NewNetworkError("link cart to binding", err)
		}
		r.sess.Events().Publish(events.Event{
			Type:         events.EventCartCreated,
			OccurrenceID: week.ID,
			WeekToken:    token,
			Fields:       map[string]string{"cartId": current.ID},
		})
	}

	updated, err := r.store.AddLineItem(ctx, current.ID, item)
	if err != nil {
		return engine.NewNetworkError("add line item", err)
	}

	r.applyCart(token, binding, updated)
	r.sess.Events().Publish(events.Event{
		Type:         events.EventProductAdded,
		OccurrenceID: week.ID,
		WeekToken:    token,
		Fields:       map[string]string{"productId": item.ProductID},
	})
	return nil
}

// createCart builds the week's cart with the pending fulfillment snapshot
// when the customer chose a mode before the first add.
func (r *Reconciler) createCart(ctx context.Context, week occurrence.Occurrence, binding occurrence.Binding) (cart.Cart, error) {
	c := cart.Cart{
		BindingID:   binding.ID,
		CustomerID:  binding.CustomerID,
		Status:      cart.StatusPending,
		Fulfillment: r.sess.TakePendingFulfillment(),
	}
	created, err := r.store.CreateCart(ctx, c)
	if err != nil {
		return cart.Cart{}, engine.NewNetworkError("create cart", err)
	}
	return created, nil
}

// RemoveProduct deletes a line item from the active week's cart. Callers are
// expected to gate on validator.CanRemove; an edit reaching a closed week is
// still rejected here without touching state.
func (r *Reconciler) RemoveProduct(ctx context.Context, lineItemID string) error {
	week, ok := r.sess.Active()
	if !ok {
		return engine.NewValidationError("no active week")
	}

	token := r.sess.Token()
	var opErr error

	r.enqueue(week.ID, func() {
		start := time.Now()
		r.sess.SetCartState(token, session.CartSaving)

		opErr = r.removeProductLocked(ctx, week, token, lineItemID)

		result := "ok"
		if opErr != nil {
			result = "error"
			r.sess.SetCartState(token, session.CartError)
			r.sess.Events().Publish(events.Event{
				Type:         events.EventMutationFailed,
				Severity:     events.SeverityError,
				OccurrenceID: week.ID,
				WeekToken:    token,
				Error:        opErr.Error(),
				Fields:       map[string]string{"op": "remove_product"},
			})
		} else {
			r.sess.SetCartState(token, session.CartSaved)
		}
		r.metrics.ObserveMutation("remove_product", result, time.Since(start))
	})
	return opErr
}

func (r *Reconciler) removeProductLocked(ctx context.Context, week occurrence.Occurrence, token uint64, lineItemID string) error {
	binding, ok := r.sess.Binding()
	if !ok || !binding.HasCart() {
		// The queue may have drained an add that failed; refetch the
		// binding before giving up.
		fetched, err := r.store.GetBinding(ctx, r.sess.CustomerID(), week.ID)
		if err != nil || !fetched.HasCart() {
			return engine.NewValidationError("no cart to remove from for week %s", week.ID)
		}
		binding = fetched
	}

	current, err := r.store.GetCart(ctx, *binding.CartID)
	if err != nil {
		return engine.NewNetworkError("fetch cart", err)
	}
	if !validator.CanRemove(week, &current) {
		return engine.NewValidationError("cart %s is not editable (%s)", current.ID, current.Status)
	}

	updated, err := r.store.RemoveLineItem(ctx, current.ID, lineItemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return engine.NewValidationError("line item %s not on cart", lineItemID)
		}
		return engine.NewNetworkError("remove line item", err)
	}

	r.applyCart(token, binding, updated)
	r.sess.Events().Publish(events.Event{
		Type:         events.EventProductRemoved,
		OccurrenceID: week.ID,
		WeekToken:    token,
		Fields:       map[string]string{"lineItemId": lineItemID},
	})
	return nil
}

// SetCartFulfillment updates the existing cart's fulfillment record through
// the mutation queue. Used by the resolver; the pending-fulfillment path in
// the session covers the no-cart case.
func (r *Reconciler) SetCartFulfillment(token uint64, info fulfillment.Info) error {
	week, ok := r.sess.Active()
	if !ok {
		return engine.NewValidationError("no active week")
	}

	var opErr error
	r.enqueue(week.ID, func() {
		binding, ok := r.sess.Binding()
		if !ok || !binding.HasCart() {
			opErr = engine.NewValidationError("no cart for week %s", week.ID)
			return
		}
		updated, err := r.store.SetCartFulfillment(context.Background(), *binding.CartID, info)
		if err != nil {
			opErr = engine.NewNetworkError("set fulfillment", err)
			return
		}
		r.applyCart(token, binding, updated)
	})
	return opErr
}

// ToggleSkip flips the active week's skip flag. Skipping never removes an
// existing cart; only the binding is flagged.
func (r *Reconciler) ToggleSkip(ctx context.Context, noSkip bool) error {
	week, ok := r.sess.Active()
	if !ok {
		return engine.NewValidationError("no active week")
	}

	var current *cart.Cart
	if c, hasCart := r.sess.Cart(); hasCart {
		current = &c
	}
	if !validator.CanSkip(week, current, noSkip) {
		return engine.NewValidationError("week %s cannot be skipped", week.ID)
	}

	token := r.sess.Token()
	var opErr error

	r.enqueue(week.ID, func() {
		binding, err := r.EnsureBinding(ctx)
		if err != nil {
			opErr = err
			return
		}
		binding.IsSkipped = !binding.IsSkipped
		binding.IsAuto = false

		updated, err := r.store.UpdateBinding(ctx, binding)
		if err != nil {
			opErr = engine.NewNetworkError("toggle skip", err)
			return
		}
		if r.applyBinding(token, updated) {
			r.sess.Events().Publish(events.Event{
				Type:         events.EventWeekSkipped,
				OccurrenceID: week.ID,
				WeekToken:    token,
				Fields:       map[string]string{"skipped": boolStr(updated.IsSkipped)},
			})
		}
	})
	return opErr
}

// RefreshWeek loads the binding and cart for the active week into the
// session. Called after every week switch; a missing binding is not an error,
// the week simply has no local record yet.
func (r *Reconciler) RefreshWeek(ctx context.Context) error {
	week, ok := r.sess.Active()
	if !ok {
		return engine.NewValidationError("no active week")
	}
	token := r.sess.Token()

	binding, err := r.store.GetBinding(ctx, r.sess.CustomerID(), week.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			vs := validator.ValidStatus(nil, r.sess.Subscription().ContractedCount())
			r.sess.ApplyConfirmed(token, nil, nil, vs)
			return nil
		}
		return engine.NewNetworkError("fetch binding", err)
	}

	if !binding.HasCart() {
		r.applyBinding(token, binding)
		return nil
	}

	c, err := r.store.GetCart(ctx, *binding.CartID)
	if err != nil {
		return engine.NewNetworkError("fetch cart", err)
	}
	r.applyCart(token, binding, c)
	return nil
}

// applyCart installs confirmed binding+cart state and the recomputed validity
// under the token guard.
func (r *Reconciler) applyCart(token uint64, binding occurrence.Binding, c cart.Cart) bool {
	vs := validator.ValidStatus(&c, r.sess.Subscription().ContractedCount())
	applied := r.sess.ApplyConfirmed(token, &binding, &c, vs)
	if applied {
		r.sess.Events().Publish(events.Event{
			Type:         events.EventValidStatusChanged,
			OccurrenceID: binding.OccurrenceID,
			WeekToken:    token,
		})
	} else {
		r.noteStale(binding.OccurrenceID, token)
	}
	return applied
}

func (r *Reconciler) noteStale(occurrenceID string, token uint64) {
	r.metrics.StaleDropped()
	r.sess.Events().Publish(events.Event{
		Type:         events.EventStaleDropped,
		Severity:     events.SeverityDebug,
		OccurrenceID: occurrenceID,
		WeekToken:    token,
	})
	r.log.Debugf("dropped stale result for week %s (token %d)", occurrenceID, token)
}

func (r *Reconciler) enqueue(weekID string, fn func()) {
	r.metrics.QueueEnter()
	defer r.metrics.QueueLeave()
	r.queues.get(weekID).do(fn)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
