package cache

import (
	"context"
	"testing"
	"time"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
)

func sampleOccurrences() []occurrence.Occurrence {
	return []occurrence.Occurrence{
		{ID: "occ-1", SubscriptionID: "sub-1", FulfillmentDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), IsValid: true, IsVisible: true},
		{ID: "occ-2", SubscriptionID: "sub-1", FulfillmentDate: time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), IsValid: true, IsVisible: true},
	}
}

func TestMemoryPutGet(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "sub-1"); err != nil || ok {
		t.Fatalf("cold cache: ok=%v err=%v", ok, err)
	}

	if err := c.Put(ctx, "sub-1", sampleOccurrences()); err != nil {
		t.Fatalf("put: %v", err)
	}
	occs, ok, err := c.Get(ctx, "sub-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(occs) != 2 || occs[0].ID != "occ-1" {
		t.Fatalf("got %+v", occs)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	c := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if err := c.Put(ctx, "sub-1", sampleOccurrences()); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "sub-1"); ok {
		t.Fatal("entry must expire after the TTL")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	_ = c.Put(ctx, "sub-1", sampleOccurrences())
	if err := c.Invalidate(ctx, "sub-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "sub-1"); ok {
		t.Fatal("entry must be gone after invalidation")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	_ = c.Put(ctx, "sub-1", sampleOccurrences())
	occs, _, _ := c.Get(ctx, "sub-1")
	occs[0].ID = "tampered"

	fresh, _, _ := c.Get(ctx, "sub-1")
	if fresh[0].ID != "occ-1" {
		t.Fatal("cache state leaked through a returned slice")
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey("sub-1"); got != "menuselect:occurrences:sub-1" {
		t.Fatalf("key = %q", got)
	}
}
