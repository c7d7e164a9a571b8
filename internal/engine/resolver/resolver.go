// Package resolver turns a zipcode's configured delivery/pickup windows and
// an occurrence's fulfillment date into a concrete fulfillment record.
package resolver

import (
	"fmt"
	"time"

	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/pkg/logger"
)

// Resolve combines the week's fulfillment date with the zipcode's configured
// time-of-day window for the requested mode. Deterministic given its inputs.
// Returns fulfillment.UnavailableError when the zipcode offers no window for
// the mode.
func Resolve(cfg fulfillment.ZipcodeConfig, week occurrence.Occurrence, mode fulfillment.Mode, addr *fulfillment.Address) (fulfillment.Info, error) {
	window := cfg.WindowFor(mode)
	if window == nil {
		return fulfillment.Info{}, fulfillment.UnavailableError{Zipcode: cfg.Zipcode, Mode: mode}
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		if parsed, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = parsed
		}
	}

	from, err := combine(week.FulfillmentDate, window.StartTime, loc)
	if err != nil {
		return fulfillment.Info{}, fmt.Errorf("invalid start time %q: %w", window.StartTime, err)
	}
	to, err := combine(week.FulfillmentDate, window.EndTime, loc)
	if err != nil {
		return fulfillment.Info{}, fmt.Errorf("invalid end time %q: %w", window.EndTime, err)
	}

	info := fulfillment.Info{
		Type: mode,
		Slot: fulfillment.Slot{From: from, To: to},
	}
	switch mode {
	case fulfillment.ModeDelivery:
		info.Address = addr
	case fulfillment.ModePickup:
		info.Address = cfg.PickupAddress
	}
	return info, nil
}

// combine anchors a "15:04" clock time onto the date portion of day in loc.
func combine(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// CartWriter is the slice of the reconciler the resolver needs to attach a
// fulfillment to an existing cart.
type CartWriter interface {
	SetCartFulfillment(token uint64, info fulfillment.Info) error
}

// Resolver applies fulfillment choices to the session: directly onto the cart
// when one exists, otherwise cached for the lazy create on first add.
type Resolver struct {
	sess  *session.Session
	carts CartWriter
	log   *logger.Logger
}

// New creates a Resolver bound to a session.
func New(sess *session.Session, carts CartWriter, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDefault("resolver")
	}
	return &Resolver{sess: sess, carts: carts, log: log}
}

// SetFulfillment resolves mode for the active week and either updates the
// existing cart or caches the result as the pending fulfillment.
func (r *Resolver) SetFulfillment(mode fulfillment.Mode, addr *fulfillment.Address) error {
	week, ok := r.sess.Active()
	if !ok {
		return fmt.Errorf("no active week")
	}
	cfg, ok := r.sess.ZipcodeConfig()
	if !ok {
		return fulfillment.UnavailableError{Mode: mode}
	}

	info, err := Resolve(cfg, week, mode, addr)
	if err != nil {
		return err
	}

	if _, hasCart := r.sess.Cart(); hasCart {
		if err := r.carts.SetCartFulfillment(r.sess.Token(), info); err != nil {
			return err
		}
		r.sess.Events().Publish(events.Event{
			Type:         events.EventFulfillmentSet,
			OccurrenceID: week.ID,
			WeekToken:    r.sess.Token(),
			Fields:       map[string]string{"mode": string(mode)},
		})
		return nil
	}

	r.sess.SetPendingFulfillment(info)
	r.sess.Events().Publish(events.Event{
		Type:         events.EventFulfillmentPending,
		OccurrenceID: week.ID,
		WeekToken:    r.sess.Token(),
		Fields:       map[string]string{"mode": string(mode)},
	})
	r.log.Debugf("fulfillment %s cached pending cart creation for week %s", mode, week.ID)
	return nil
}
