// Package selector tracks which fulfillment week is active for a session:
// initial load and selection, deep-link pinning and cyclic advance over the
// visible picker subset.
package selector

import (
	"context"
	"sort"
	"time"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/pkg/logger"
)

// Direction names the advance direction over the visible week list.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// Source fetches the occurrence set for a subscription from the data layer.
type Source interface {
	FetchOccurrences(ctx context.Context, subscriptionID string, pinDate *time.Time) ([]occurrence.Occurrence, error)
}

// Cache is an optional read-through cache for the occurrence set.
type Cache interface {
	Get(ctx context.Context, subscriptionID string) ([]occurrence.Occurrence, bool, error)
	Put(ctx context.Context, subscriptionID string, occs []occurrence.Occurrence) error
}

// Selector drives the active-week state machine.
type Selector struct {
	sess   *session.Session
	source Source
	cache  Cache
	log    *logger.Logger
}

// New creates a Selector bound to a session.
func New(sess *session.Session, source Source, cache Cache, log *logger.Logger) *Selector {
	if log == nil {
		log = logger.NewDefault("selector")
	}
	return &Selector{sess: sess, source: source, cache: cache, log: log}
}

// Load fetches the occurrence set and selects the initial active week. When
// pinDate is set the matching occurrence is activated instead of the first
// valid one (deep-link support). Returns engine.ErrNoValidOccurrence when the
// set contains no orderable week; the session then sits in the terminal empty
// phase.
func (s *Selector) Load(ctx context.Context, subscriptionID string, pinDate *time.Time) error {
	if err := s.sess.SetPhase(session.PhaseLoading); err != nil {
		return err
	}

	occs, err := s.fetch(ctx, subscriptionID, pinDate)
	if err != nil {
		// Loading loops on itself so the caller may retry the load.
		return engine.NewNetworkError("load occurrences", err)
	}

	sort.Slice(occs, func(i, j int) bool {
		return occs[i].FulfillmentDate.Before(occs[j].FulfillmentDate)
	})
	s.sess.SetOccurrences(occs)

	idx, ok := s.pickInitial(occs, pinDate)
	if !ok {
		_ = s.sess.SetPhase(session.PhaseEmpty)
		s.sess.Events().Publish(events.Event{
			Type:     events.EventOccurrencesEmpty,
			Severity: events.SeverityWarning,
			Message:  "no valid occurrence for subscription " + subscriptionID,
		})
		return engine.ErrNoValidOccurrence
	}

	token := s.sess.ActivateWeek(idx)
	if err := s.sess.SetPhase(session.PhaseReady); err != nil {
		return err
	}

	s.sess.Events().Publish(events.Event{
		Type:         events.EventOccurrencesLoaded,
		OccurrenceID: occs[idx].ID,
		WeekToken:    token,
	})
	s.sess.Events().Publish(events.Event{
		Type:         events.EventWeekSelected,
		OccurrenceID: occs[idx].ID,
		WeekToken:    token,
	})
	s.log.Infof("loaded %d occurrences, active week %s", len(occs), occs[idx].ID)
	return nil
}

func (s *Selector) fetch(ctx context.Context, subscriptionID string, pinDate *time.Time) ([]occurrence.Occurrence, error) {
	// Pinned loads bypass the cache: the pin date narrows the upstream
	// query and the cached full set may not include it.
	if s.cache != nil && pinDate == nil {
		if occs, ok, err := s.cache.Get(ctx, subscriptionID); err == nil && ok {
			return occs, nil
		}
	}

	occs, err := s.source.FetchOccurrences(ctx, subscriptionID, pinDate)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && pinDate == nil {
		if err := s.cache.Put(ctx, subscriptionID, occs); err != nil {
			s.log.Warnf("occurrence cache write failed: %v", err)
		}
	}
	return occs, nil
}

func (s *Selector) pickInitial(occs []occurrence.Occurrence, pinDate *time.Time) (int, bool) {
	if pinDate != nil {
		for i, occ := range occs {
			if sameDay(occ.FulfillmentDate, *pinDate) && occ.IsValid {
				return i, true
			}
		}
	}
	return SelectInitial(occs)
}

// SelectInitial returns the index of the first valid occurrence scanning in
// ascending date order. The input must already be sorted by date.
func SelectInitial(occs []occurrence.Occurrence) (int, bool) {
	for i, occ := range occs {
		if occ.IsValid {
			return i, true
		}
	}
	return -1, false
}

// Select activates the occurrence with the given id. Used for direct picker
// taps.
func (s *Selector) Select(occurrenceID string) (occurrence.Occurrence, error) {
	occs := s.sess.Occurrences()
	for i, occ := range occs {
		if occ.ID == occurrenceID {
			token := s.sess.ActivateWeek(i)
			if err := s.sess.SetPhase(session.PhaseReady); err != nil {
				return occurrence.Occurrence{}, err
			}
			s.sess.Events().Publish(events.Event{
				Type:         events.EventWeekSelected,
				OccurrenceID: occ.ID,
				WeekToken:    token,
			})
			return occ, nil
		}
	}
	return occurrence.Occurrence{}, engine.NewValidationError("occurrence %s not in loaded set", occurrenceID)
}

// Advance moves the active week one step through the visible subset, wrapping
// at either end. In-flight work for the previous week is abandoned via the
// week-token bump inside ActivateWeek.
func (s *Selector) Advance(dir Direction) (occurrence.Occurrence, error) {
	occs := s.sess.Occurrences()
	active, ok := s.sess.Active()
	if !ok {
		return occurrence.Occurrence{}, engine.NewValidationError("no active week to advance from")
	}

	visible := make([]int, 0, len(occs))
	for i, occ := range occs {
		if occ.IsVisible {
			visible = append(visible, i)
		}
	}
	if len(visible) == 0 {
		return occurrence.Occurrence{}, engine.NewValidationError("no visible weeks")
	}

	pos := -1
	for vi, idx := range visible {
		if occs[idx].ID == active.ID {
			pos = vi
			break
		}
	}
	if pos == -1 {
		// Active week fell out of the visible set; restart at the front.
		pos = 0
	} else {
		switch dir {
		case DirectionPrevious:
			pos = (pos - 1 + len(visible)) % len(visible)
		default:
			pos = (pos + 1) % len(visible)
		}
	}

	target := visible[pos]
	token := s.sess.ActivateWeek(target)
	s.sess.Events().Publish(events.Event{
		Type:         events.EventWeekAdvanced,
		OccurrenceID: occs[target].ID,
		WeekToken:    token,
		Fields:       map[string]string{"direction": string(dir)},
	})
	return occs[target], nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
