// Package session provides a bounded in-memory registry of per-session state.
package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry holds the value for one session key. Value may only be read or
// written while the entry is held through Registry.Acquire.
type Entry[T any] struct {
	Key   string
	Value T

	mu       sync.Mutex
	holders  int // goroutines holding or waiting on mu; guarded by Registry.mu
	lastUsed time.Time
	elem     *list.Element
}

// Registry maps session keys to entries, evicting entries idle for longer
// than ttl and the least recently used ones beyond capacity. Entries in use
// are never evicted.
type Registry[T any] struct {
	mu       sync.Mutex
	entries  map[string]*Entry[T]
	lru      *list.List // front = most recently used
	ttl      time.Duration
	capacity int
	newValue func(key string) T
	onEvict  func(key string)
	now      func() time.Time
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithEvictCallback registers fn to run after a key is evicted.
func WithEvictCallback[T any](fn func(key string)) Option[T] {
	return func(r *Registry[T]) { r.onEvict = fn }
}

// WithClock overrides the time source.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(r *Registry[T]) { r.now = now }
}

// NewRegistry creates a registry. newValue builds the initial value for a key
// seen for the first time.
func NewRegistry[T any](ttl time.Duration, capacity int, newValue func(key string) T, opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		entries:  make(map[string]*Entry[T]),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		newValue: newValue,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the entry for key, creating it if needed, with its lock
// held. Callers on the same key are serialised in arrival order of the lock.
// release must be called exactly once.
func (r *Registry[T]) Acquire(key string) (*Entry[T], func()) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &Entry[T]{Key: key, Value: r.newValue(key)}
		e.elem = r.lru.PushFront(e)
		r.entries[key] = e
	} else {
		r.lru.MoveToFront(e.elem)
	}
	e.holders++
	e.lastUsed = r.now()
	evicted := r.evictOverCapacityLocked()
	r.mu.Unlock()

	r.notify(evicted)

	e.mu.Lock()
	var once sync.Once
	return e, func() {
		once.Do(func() {
			r.mu.Lock()
			e.holders--
			e.lastUsed = r.now()
			r.mu.Unlock()
			e.mu.Unlock()
		})
	}
}

// Contains reports whether key is resident.
func (r *Registry[T]) Contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Delete drops key. An entry that is currently held stays usable by its
// holder but is no longer reachable by new callers.
func (r *Registry[T]) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		r.lru.Remove(e.elem)
		delete(r.entries, key)
	}
}

// Len returns the number of resident entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts entries idle for longer than the TTL and returns their keys.
func (r *Registry[T]) Sweep() []string {
	r.mu.Lock()
	cutoff := r.now().Add(-r.ttl)
	var evicted []string
	for el := r.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*Entry[T])
		if e.holders == 0 && e.lastUsed.Before(cutoff) {
			r.lru.Remove(el)
			delete(r.entries, e.Key)
			evicted = append(evicted, e.Key)
		}
		el = prev
	}
	r.mu.Unlock()

	r.notify(evicted)
	return evicted
}

// StartEviction runs Sweep every interval until ctx is cancelled.
func (r *Registry[T]) StartEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := r.Sweep(); len(evicted) > 0 {
					slog.Debug("Session registry evicted idle sessions", "count", len(evicted))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictOverCapacityLocked drops least recently used idle entries until the
// registry fits its capacity. r.mu must be held.
func (r *Registry[T]) evictOverCapacityLocked() []string {
	if r.capacity <= 0 {
		return nil
	}
	var evicted []string
	for el := r.lru.Back(); el != nil && len(r.entries) > r.capacity; {
		prev := el.Prev()
		e := el.Value.(*Entry[T])
		if e.holders == 0 {
			r.lru.Remove(el)
			delete(r.entries, e.Key)
			evicted = append(evicted, e.Key)
		}
		el = prev
	}
	return evicted
}

func (r *Registry[T]) notify(keys []string) {
	if r.onEvict == nil {
		return
	}
	for _, k := range keys {
		r.onEvict(k)
	}
}
