// Package cache provides the occurrence-set cache consulted before hitting
// the data layer. A Redis implementation shares the cache across sessions; an
// in-memory implementation backs tests and single-process deployments.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/freshplate/menuselect/internal/domain/occurrence"
)

// OccurrenceCache is the read-through cache the selector consults.
type OccurrenceCache interface {
	Get(ctx context.Context, subscriptionID string) ([]occurrence.Occurrence, bool, error)
	Put(ctx context.Context, subscriptionID string, occs []occurrence.Occurrence) error
	Invalidate(ctx context.Context, subscriptionID string) error
}

// -- Redis -------------------------------------------------------------------

// Redis caches occurrence sets in Redis with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ OccurrenceCache = (*Redis)(nil)

// NewRedis creates a Redis-backed cache. TTL defaults to 15 minutes.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func redisKey(subscriptionID string) string {
	return "menuselect:occurrences:" + subscriptionID
}

func (r *Redis) Get(ctx context.Context, subscriptionID string) ([]occurrence.Occurrence, bool, error) {
	raw, err := r.client.Get(ctx, redisKey(subscriptionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var occs []occurrence.Occurrence
	if err := json.Unmarshal(raw, &occs); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return occs, true, nil
}

func (r *Redis) Put(ctx context.Context, subscriptionID string, occs []occurrence.Occurrence) error {
	raw, err := json.Marshal(occs)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(subscriptionID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, subscriptionID string) error {
	return r.client.Del(ctx, redisKey(subscriptionID)).Err()
}

// -- In-memory ---------------------------------------------------------------

type memoryEntry struct {
	occs    []occurrence.Occurrence
	expires time.Time
}

// Memory is a process-local occurrence cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

var _ OccurrenceCache = (*Memory)(nil)

// NewMemory creates an in-memory cache. TTL defaults to 15 minutes.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Memory{entries: make(map[string]memoryEntry), ttl: ttl}
}

func (m *Memory) Get(_ context.Context, subscriptionID string) ([]occurrence.Occurrence, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[subscriptionID]
	if !ok || time.Now().After(entry.expires) {
		return nil, false, nil
	}
	return append([]occurrence.Occurrence(nil), entry.occs...), true, nil
}

func (m *Memory) Put(_ context.Context, subscriptionID string, occs []occurrence.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[subscriptionID] = memoryEntry{
		occs:    append([]occurrence.Occurrence(nil), occs...),
		expires: time.Now().Add(m.ttl),
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, subscriptionID)
	return nil
}
