// Package ratelimit tracks request counts per caller with bounded memory.
package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

// Tracker counts requests per caller key over a fixed window. It remembers at
// most Capacity callers; when full, the least recently seen caller is evicted.
// All methods are safe for concurrent use.
type Tracker struct {
	capacity int
	limit    int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type entry struct {
	key   string
	start time.Time
	count int
}

// New creates a tracker remembering up to capacity callers and allowing limit
// requests per window. A limit of zero counts without rejecting.
func New(capacity, limit int, window time.Duration) *Tracker {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Tracker{
		capacity: capacity,
		limit:    limit,
		window:   window,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Hit records one request for key. It returns the count in the current window
// and whether the request is within the limit.
func (t *Tracker) Hit(key string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e := t.touch(key, now)
	e.count++
	return e.count, t.limit <= 0 || e.count <= t.limit
}

// Allow is Hit reduced to the verdict.
func (t *Tracker) Allow(key string) bool {
	_, ok := t.Hit(key)
	return ok
}

// Count returns the current window's count for key without recording a hit.
func (t *Tracker) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[key]
	if !ok {
		return 0
	}
	e := el.Value.(*entry)
	if t.now().Sub(e.start) >= t.window {
		return 0
	}
	return e.count
}

// Len returns the number of callers currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// touch returns key's entry, moving it to the front and resetting an expired
// window. Must be called with mu held.
func (t *Tracker) touch(key string, now time.Time) *entry {
	if el, ok := t.entries[key]; ok {
		t.order.MoveToFront(el)
		e := el.Value.(*entry)
		if now.Sub(e.start) >= t.window {
			e.start = now
			e.count = 0
		}
		return e
	}

	if t.order.Len() >= t.capacity {
		oldest := t.order.Back()
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*entry).key)
	}
	e := &entry{key: key, start: now}
	t.entries[key] = t.order.PushFront(e)
	return e
}
