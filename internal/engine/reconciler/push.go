package reconciler

import (
	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/engine/events"
)

// PushKind names the live-push payloads the data layer delivers after
// mutations.
type PushKind string

const (
	PushBinding       PushKind = "binding"
	PushCart          PushKind = "cart"
	PushZipcodeConfig PushKind = "zipcode_config"
)

// Push is one eventually-consistent update from the data layer's subscription
// channel.
type Push struct {
	Kind         PushKind
	OccurrenceID string
	Binding      *occurrence.Binding
	Cart         *cart.Cart
	Zipcode      *fulfillment.ZipcodeConfig
}

// ApplyPush folds a live push into the session. Week-scoped pushes apply only
// to the active week; anything else is dropped, like any stale async result.
func (r *Reconciler) ApplyPush(p Push) {
	switch p.Kind {
	case PushZipcodeConfig:
		if p.Zipcode == nil {
			return
		}
		// Zipcode availability is session-wide, not week-scoped.
		r.sess.SetZipcodeConfig(*p.Zipcode)
		r.metrics.ObservePush(string(p.Kind), "applied")
		r.sess.Events().Publish(events.Event{Type: events.EventPushApplied,
			Fields: map[string]string{"kind": string(p.Kind)}})
		return

	case PushBinding, PushCart:
		active, ok := r.sess.Active()
		if !ok || p.OccurrenceID != active.ID {
			r.dropPush(p)
			return
		}
		token := r.sess.Token()

		var applied bool
		switch {
		case p.Kind == PushBinding && p.Binding != nil:
			applied = r.applyBinding(token, *p.Binding)
		case p.Kind == PushCart && p.Cart != nil:
			binding, ok := r.sess.Binding()
			if !ok {
				r.dropPush(p)
				return
			}
			applied = r.applyCart(token, binding, *p.Cart)
		default:
			r.dropPush(p)
			return
		}

		if applied {
			r.metrics.ObservePush(string(p.Kind), "applied")
			r.sess.Events().Publish(events.Event{
				Type:         events.EventPushApplied,
				OccurrenceID: p.OccurrenceID,
				WeekToken:    token,
				Fields:       map[string]string{"kind": string(p.Kind)},
			})
		} else {
			r.dropPush(p)
		}
	}
}

func (r *Reconciler) dropPush(p Push) {
	r.metrics.ObservePush(string(p.Kind), "dropped")
	r.sess.Events().Publish(events.Event{
		Type:         events.EventPushDropped,
		Severity:     events.SeverityDebug,
		OccurrenceID: p.OccurrenceID,
		Fields:       map[string]string{"kind": string(p.Kind)},
	})
}
