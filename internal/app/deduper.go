/**
 * @description
 * Dedup-window implementations for the event reconciler. Gateway deliveries
 * are at-least-once; the window collapses repeats of the same event id into
 * effectively-once application without unbounded id storage.
 *
 * Two implementations:
 * - RedisDeduper: distributed window over TTL'd Redis keys, correct across
 *   multiple service replicas.
 * - MemoryDeduper: per-process fallback used when Redis is not configured or
 *   unreachable at startup.
 */
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupWindow bounds how long an event id is remembered. Gateway retry
// schedules taper off well inside this window.
const DefaultDedupWindow = 24 * time.Hour

// RedisDeduper implements a distributed recent-event-id window using Redis.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func (d *RedisDeduper) key(eventID string) string {
	return d.prefix + ":" + eventID
}

// NewRedisDeduper creates a RedisDeduper with the given key prefix and window.
func NewRedisDeduper(client redis.UniversalClient, prefix string, window time.Duration) *RedisDeduper {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "goredshirt:webhook_events"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if window <= 0 {
		window = DefaultDedupWindow
	}

	return &RedisDeduper{
		client: client,
		prefix: trimmedPrefix,
		window: window,
	}
}

// Seen reports whether the event id is already present in the window. It does
// not record the id; Mark does that once the event has actually been applied.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	count, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Mark records the event id for the duration of the window.
func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), 1, d.window).Err()
}

// MemoryDeduper is a bounded in-process event-id window. Entries older than
// the window are pruned on each call.
type MemoryDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper with the given window.
func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &MemoryDeduper{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Seen reports whether the event id is already present inside the window.
func (d *MemoryDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune()
	_, exists := d.seen[eventID]
	return exists, nil
}

// Mark records the event id for the duration of the window.
func (d *MemoryDeduper) Mark(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune()
	d.seen[eventID] = d.now()
	return nil
}

// prune drops entries older than the window. Callers must hold the lock.
func (d *MemoryDeduper) prune() {
	cutoff := d.now().Add(-d.window)
	for id, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}
