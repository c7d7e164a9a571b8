// Package skipper marks intervening weeks skipped in one batch when the
// customer picks a first-delivery date later than the earliest available
// occurrence.
package skipper

import (
	"context"
	"strconv"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/internal/storage"
	"github.com/freshplate/menuselect/pkg/logger"
)

// Coordinator performs bulk skip writes.
type Coordinator struct {
	sess  *session.Session
	store storage.BindingStore
	log   *logger.Logger
}

// New creates a Coordinator bound to a session.
func New(sess *session.Session, store storage.BindingStore, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewDefault("skipper")
	}
	return &Coordinator{sess: sess, store: store, log: log}
}

// SkipUpTo skips every occurrence strictly before the one with selectedID in
// the session's date-ordered list, as one atomic batch. On failure no week is
// considered skipped and a single error surfaces.
func (c *Coordinator) SkipUpTo(ctx context.Context, selectedID string) ([]occurrence.Binding, error) {
	occs := c.sess.Occurrences()
	idx := -1
	for i, occ := range occs {
		if occ.ID == selectedID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, engine.NewValidationError("occurrence %s not in loaded set", selectedID)
	}
	return c.SkipRange(ctx, occs[:idx])
}

// SkipRange writes skip bindings for the given occurrences in one batch.
// Bindings are created with IsAuto set: the skip is machine initiated, not a
// customer action.
func (c *Coordinator) SkipRange(ctx context.Context, occs []occurrence.Occurrence) ([]occurrence.Binding, error) {
	if len(occs) == 0 {
		return nil, nil
	}

	bindings := make([]occurrence.Binding, 0, len(occs))
	for _, occ := range occs {
		bindings = append(bindings, occurrence.Binding{
			CustomerID:   c.sess.CustomerID(),
			OccurrenceID: occ.ID,
			IsSkipped:    true,
			IsAuto:       true,
		})
	}

	saved, err := c.store.BulkUpsertBindings(ctx, bindings)
	if err != nil {
		c.sess.Events().Publish(events.Event{
			Type:     events.EventRangeSkipFailed,
			Severity: events.SeverityError,
			Error:    err.Error(),
		})
		return nil, engine.NewNetworkError("bulk skip", err)
	}

	c.sess.Events().Publish(events.Event{
		Type:   events.EventRangeSkipped,
		Fields: map[string]string{"count": strconv.Itoa(len(saved))},
	})
	c.log.Infof("skipped %d weeks in one batch", len(saved))
	return saved, nil
}
