package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/domain/subscription"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/pkg/logger"
	"github.com/freshplate/menuselect/pkg/testutil"
)

func testSession() *session.Session {
	return session.New("cust-1", subscription.Subscription{ID: "sub-1", RecipeCount: 3}, nil)
}

// fiveWeeks models a set where the first week has closed: picking starts at
// the first still-valid occurrence.
func fiveWeeks() []occurrence.Occurrence {
	return testutil.Weeks("sub-1",
		testutil.WeekSpec{ID: "occ-1", Date: "2026-08-31", Valid: false, Visible: false},
		testutil.WeekSpec{ID: "occ-2", Date: "2026-09-07", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-3", Date: "2026-09-14", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-4", Date: "2026-09-21", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-5", Date: "2026-09-28", Valid: true, Visible: false},
	)
}

func TestLoadSelectsFirstValidWeek(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Occurrences: fiveWeeks()}
	sel := New(sess, source, nil, logger.Nop())

	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	active, ok := sess.Active()
	if !ok || active.ID != "occ-2" {
		t.Fatalf("active = %+v, want occ-2 (first valid)", active)
	}
	if sess.Phase() != session.PhaseReady {
		t.Fatalf("phase = %v, want ready", sess.Phase())
	}
	if sess.Token() == 0 {
		t.Fatal("load must issue a week token")
	}
}

func TestLoadSortsByDate(t *testing.T) {
	weeks := fiveWeeks()
	// Shuffle: the upstream order is not guaranteed.
	weeks[0], weeks[3] = weeks[3], weeks[0]

	sess := testSession()
	sel := New(sess, &testutil.StaticSource{Occurrences: weeks}, nil, logger.Nop())
	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	occs := sess.Occurrences()
	for i := 1; i < len(occs); i++ {
		if occs[i].FulfillmentDate.Before(occs[i-1].FulfillmentDate) {
			t.Fatalf("occurrences not date-ordered at %d: %+v", i, occs)
		}
	}
}

func TestLoadEmptySetEntersTerminalEmptyPhase(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Occurrences: testutil.Weeks("sub-1",
		testutil.WeekSpec{ID: "occ-1", Date: "2026-08-31", Valid: false, Visible: false},
	)}
	sel := New(sess, source, nil, logger.Nop())

	err := sel.Load(context.Background(), "sub-1", nil)
	if !errors.Is(err, engine.ErrNoValidOccurrence) {
		t.Fatalf("err = %v, want ErrNoValidOccurrence", err)
	}
	if sess.Phase() != session.PhaseEmpty {
		t.Fatalf("phase = %v, want empty", sess.Phase())
	}
	if err := sess.SetPhase(session.PhaseLoading); err == nil {
		t.Fatal("empty phase must be terminal")
	}
}

func TestLoadFetchFailureIsNetworkError(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Err: errors.New("upstream down")}
	sel := New(sess, source, nil, logger.Nop())

	err := sel.Load(context.Background(), "sub-1", nil)
	if !engine.IsNetwork(err) {
		t.Fatalf("err = %v, want a network error", err)
	}
	// Loading loops on itself so the load may be retried.
	if sess.Phase() != session.PhaseLoading {
		t.Fatalf("phase = %v, want loading", sess.Phase())
	}
	source.Err = nil
	source.Occurrences = fiveWeeks()
	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestLoadPinDateActivatesMatch(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Occurrences: fiveWeeks()}
	sel := New(sess, source, nil, logger.Nop())

	pin := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if err := sel.Load(context.Background(), "sub-1", &pin); err != nil {
		t.Fatalf("load: %v", err)
	}
	active, _ := sess.Active()
	if active.ID != "occ-3" {
		t.Fatalf("active = %s, want pinned occ-3", active.ID)
	}
}

func TestLoadPinDateFallsBackToFirstValid(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Occurrences: fiveWeeks()}
	sel := New(sess, source, nil, logger.Nop())

	// Pin on the closed week: not activatable, first valid wins.
	pin := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if err := sel.Load(context.Background(), "sub-1", &pin); err != nil {
		t.Fatalf("load: %v", err)
	}
	active, _ := sess.Active()
	if active.ID != "occ-2" {
		t.Fatalf("active = %s, want occ-2", active.ID)
	}
}

func TestSelectInitial(t *testing.T) {
	idx, ok := SelectInitial(fiveWeeks())
	if !ok || idx != 1 {
		t.Fatalf("SelectInitial = %d, %v, want index 1", idx, ok)
	}
	if _, ok := SelectInitial(nil); ok {
		t.Fatal("empty set must report no pick")
	}
}

func TestSelectBumpsToken(t *testing.T) {
	sess := testSession()
	sel := New(sess, &testutil.StaticSource{Occurrences: fiveWeeks()}, nil, logger.Nop())
	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := sess.Token()

	occ, err := sel.Select("occ-4")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if occ.ID != "occ-4" {
		t.Fatalf("selected %s", occ.ID)
	}
	if sess.Token() <= before {
		t.Fatal("select must bump the week token")
	}

	if _, err := sel.Select("occ-404"); !engine.IsValidation(err) {
		t.Fatalf("unknown id: err = %v, want validation error", err)
	}
}

func TestAdvanceCyclesVisibleSubset(t *testing.T) {
	sess := testSession()
	sel := New(sess, &testutil.StaticSource{Occurrences: fiveWeeks()}, nil, logger.Nop())
	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Visible subset is occ-2, occ-3, occ-4; active starts at occ-2.
	steps := []string{"occ-3", "occ-4", "occ-2", "occ-3"}
	for i, want := range steps {
		occ, err := sel.Advance(DirectionNext)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if occ.ID != want {
			t.Fatalf("advance %d = %s, want %s", i, occ.ID, want)
		}
	}

	occ, err := sel.Advance(DirectionPrevious)
	if err != nil {
		t.Fatalf("advance previous: %v", err)
	}
	if occ.ID != "occ-2" {
		t.Fatalf("previous from occ-3 = %s, want occ-2", occ.ID)
	}

	// Previous from the front wraps to the back.
	occ, _ = sel.Advance(DirectionPrevious)
	if occ.ID != "occ-4" {
		t.Fatalf("previous wrap = %s, want occ-4", occ.ID)
	}
}

func TestLoadUsesCache(t *testing.T) {
	sess := testSession()
	source := &testutil.StaticSource{Occurrences: fiveWeeks()}
	cache := &stubCache{}
	sel := New(sess, source, cache, logger.Nop())

	if err := sel.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if source.Calls() != 1 || cache.puts != 1 {
		t.Fatalf("first load: %d fetches, %d cache puts", source.Calls(), cache.puts)
	}

	sess2 := testSession()
	sel2 := New(sess2, source, cache, logger.Nop())
	if err := sel2.Load(context.Background(), "sub-1", nil); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if source.Calls() != 1 {
		t.Fatalf("second load must hit the cache: %d fetches", source.Calls())
	}

	// Pinned loads bypass the cache.
	sess3 := testSession()
	sel3 := New(sess3, source, cache, logger.Nop())
	pin := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if err := sel3.Load(context.Background(), "sub-1", &pin); err != nil {
		t.Fatalf("pinned load: %v", err)
	}
	if source.Calls() != 2 {
		t.Fatalf("pinned load must bypass the cache: %d fetches", source.Calls())
	}
}

type stubCache struct {
	occs []occurrence.Occurrence
	puts int
}

func (c *stubCache) Get(_ context.Context, _ string) ([]occurrence.Occurrence, bool, error) {
	if c.occs == nil {
		return nil, false, nil
	}
	return append([]occurrence.Occurrence(nil), c.occs...), true, nil
}

func (c *stubCache) Put(_ context.Context, _ string, occs []occurrence.Occurrence) error {
	c.occs = append([]occurrence.Occurrence(nil), occs...)
	c.puts++
	return nil
}
