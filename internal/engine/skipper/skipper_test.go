package skipper

import (
	"context"
	"testing"

	"github.com/freshplate/menuselect/internal/domain/subscription"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/events"
	"github.com/freshplate/menuselect/internal/engine/session"
	"github.com/freshplate/menuselect/internal/storage/memory"
	"github.com/freshplate/menuselect/pkg/logger"
	"github.com/freshplate/menuselect/pkg/testutil"
)

func newSession() *session.Session {
	sess := session.New("cust-1", subscription.Subscription{ID: "sub-1", RecipeCount: 3}, events.NewBus(0))
	sess.SetOccurrences(testutil.Weeks("sub-1",
		testutil.WeekSpec{ID: "occ-1", Date: "2026-09-07", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-2", Date: "2026-09-14", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-3", Date: "2026-09-21", Valid: true, Visible: true},
		testutil.WeekSpec{ID: "occ-4", Date: "2026-09-28", Valid: true, Visible: true},
	))
	return sess
}

func TestSkipUpToSkipsEarlierWeeks(t *testing.T) {
	store := memory.New()
	c := New(newSession(), store, logger.Nop())
	ctx := context.Background()

	saved, err := c.SkipUpTo(ctx, "occ-3")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved %d bindings, want 2", len(saved))
	}
	for _, b := range saved {
		if !b.IsSkipped || !b.IsAuto {
			t.Fatalf("binding %s must be skipped and auto: %+v", b.OccurrenceID, b)
		}
	}

	all, err := store.ListBindings(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("store holds %d bindings, want 2", len(all))
	}
	// The selected week itself is never skipped.
	for _, b := range all {
		if b.OccurrenceID == "occ-3" || b.OccurrenceID == "occ-4" {
			t.Fatalf("unexpected binding for %s", b.OccurrenceID)
		}
	}
}

func TestSkipUpToFirstWeekIsNoop(t *testing.T) {
	store := memory.New()
	c := New(newSession(), store, logger.Nop())

	saved, err := c.SkipUpTo(context.Background(), "occ-1")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("saved %d bindings, want 0", len(saved))
	}
}

func TestSkipUpToUnknownOccurrence(t *testing.T) {
	c := New(newSession(), memory.New(), logger.Nop())
	_, err := c.SkipUpTo(context.Background(), "occ-404")
	if !engine.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSkipBatchIsAllOrNothing(t *testing.T) {
	faulty := testutil.NewFaultyStore(memory.New())
	faulty.FailBulkUpsert = true
	sess := newSession()
	c := New(sess, faulty, logger.Nop())
	ctx := context.Background()

	_, err := c.SkipUpTo(ctx, "occ-4")
	if !engine.IsNetwork(err) {
		t.Fatalf("err = %v, want network error", err)
	}

	// No week may be left skipped after a failed batch.
	all, listErr := faulty.ListBindings(ctx, "cust-1")
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(all) != 0 {
		t.Fatalf("partial batch persisted %d bindings, want 0", len(all))
	}
	if got := sess.Events().RecentByType(events.EventRangeSkipFailed, 1); len(got) != 1 {
		t.Fatal("failed batch must publish an event")
	}
	if faulty.BulkUpsertCalls() != 1 {
		t.Fatalf("bulk writes = %d, want exactly 1", faulty.BulkUpsertCalls())
	}
}
