// Package dedupe absorbs redelivered step envelopes by remembering the
// event ids seen recently.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records seen event IDs so a step is applied at most once.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget removes id so a later redelivery is accepted again. Used when a
	// step was recorded but could not be queued.
	Forget(ctx context.Context, id string)

	// Size returns the number of remembered ids.
	Size() int
}

type entry struct {
	id string
	at time.Time
}

// inMemoryDeduper keeps ids in arrival order and evicts the oldest first,
// either when maxSize is reached or when an id outlives ttl.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a deduper. Without options it remembers up to
// 10000 ids with no expiry.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.removeElement(d.order.Front())
	}
	d.seen[id] = d.order.PushBack(entry{id: id, at: now})
	return false
}

func (d *inMemoryDeduper) Forget(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.removeElement(el)
	}
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// expire drops ids older than ttl. Must be called with d.mu held.
func (d *inMemoryDeduper) expire(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if now.Sub(el.Value.(entry).at) < d.ttl {
			return
		}
		d.removeElement(el)
	}
}

func (d *inMemoryDeduper) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	delete(d.seen, el.Value.(entry).id)
	d.order.Remove(el)
}
