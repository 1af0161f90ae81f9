package cache

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

// Op describes the effect a record or event had on the cache.
type Op int

const (
	// OpDiscarded means the record was stale, malformed, or targeted a
	// missing entry; the cache is unchanged.
	OpDiscarded Op = iota
	OpInserted
	OpUpdated
	OpRemoved
)

// Delta is the observable effect of folding one record into the cache.
// Before and After are detached copies of the order images the aggregate
// maintainer needs to adjust its buckets incrementally; they never alias a
// live cache entry.
type Delta struct {
	Op     Op
	Before *order.Order
	After  *order.Order
}

// Subscriber receives cache changes. Applied is called once per effective
// delta; Resynced replaces granular deltas after a reconnect-triggered full
// resync, handing over the reconciled contents to rebuild from. Deliveries
// are serialized and arrive in cache order.
type Subscriber interface {
	Applied(d Delta)
	Resynced(orders []order.Order)
}

type entry struct {
	order      order.Order
	lastSeenAt time.Time
}

// Cache merges the initial bulk snapshot and the live change stream into one
// ordered, deduplicated collection. It is the single source of truth every
// consumer reads; consumers never create entries directly.
type Cache struct {
	// dispatchMu serializes each write path together with its subscriber
	// delivery. A live event racing a resync must not reach subscribers
	// until the Resynced rebuild has been handed over.
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	byID   map[string]*entry
	sorted []*entry // created_at descending, id ascending tie-break
	subs   []Subscriber
	now    func() time.Time
}

func New() *Cache {
	return &Cache{
		byID: make(map[string]*entry),
		now:  time.Now,
	}
}

// Subscribe registers s for delta and resync notifications. Not safe to call
// concurrently with event processing; wire subscribers before the feed starts.
func (c *Cache) Subscribe(s Subscriber) {
	c.subs = append(c.subs, s)
}

// ApplyChange folds one live change event into the cache and notifies
// subscribers of the effective delta. Malformed records are rejected and
// logged, never inserted.
func (c *Cache) ApplyChange(ev order.ChangeEvent) (Delta, error) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if ev.Kind == order.ChangeDelete {
		if ev.Record.ID == "" {
			log.Printf("[Cache] Rejecting delete with no id")
			return Delta{Op: OpDiscarded}, order.ErrMalformedRecord
		}
		d := c.remove(ev.Record.ID)
		c.notify(d)
		return d, nil
	}

	if err := ev.Record.Validate(); err != nil {
		log.Printf("[Cache] Rejecting %s event: %v", ev.Kind, err)
		return Delta{Op: OpDiscarded}, err
	}

	d := c.merge(ev.Record)
	c.notify(d)
	return d, nil
}

// MergeSnapshot folds the initial bulk fetch into the cache. Each record goes
// through the same merge rule as live events, so a snapshot arriving after a
// live insert or update never clobbers the fresher data.
func (c *Cache) MergeSnapshot(records []order.Order) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	for _, r := range records {
		if err := r.Validate(); err != nil {
			log.Printf("[Cache] Rejecting snapshot record: %v", err)
			continue
		}
		c.notify(c.merge(r))
	}
}

// Resync supersedes an unknown gap after a reconnect: the fresh snapshot is
// merged, entries absent from it are pruned unless they were seen live after
// disconnectedAt (the snapshot may predate them), and subscribers are told to
// rebuild from scratch rather than patch an unknowable diff.
func (c *Cache) Resync(records []order.Order, disconnectedAt time.Time) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	inSnapshot := make(map[string]bool, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			log.Printf("[Cache] Rejecting resync record: %v", err)
			continue
		}
		inSnapshot[r.ID] = true
		c.mergeLocked(r)
	}
	for id, e := range c.byID {
		if !inSnapshot[id] && !e.lastSeenAt.After(disconnectedAt) {
			c.removeLocked(id)
		}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("[Cache] Resynced, %d orders", len(snapshot))
	for _, s := range c.subs {
		s.Resynced(snapshot)
	}
}

// Snapshot returns a copy of the collection, created_at descending.
func (c *Cache) Snapshot() []order.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Recent returns the n most recently created orders.
func (c *Cache) Recent(n int) []order.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n > len(c.sorted) {
		n = len(c.sorted)
	}
	out := make([]order.Order, n)
	for i := 0; i < n; i++ {
		out[i] = c.sorted[i].order
	}
	return out
}

// Get returns the cached order with the given id.
func (c *Cache) Get(id string) (order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return order.Order{}, false
	}
	return e.order, true
}

// Len returns the number of cached orders.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sorted)
}

func (c *Cache) snapshotLocked() []order.Order {
	out := make([]order.Order, len(c.sorted))
	for i, e := range c.sorted {
		out[i] = e.order
	}
	return out
}

func (c *Cache) merge(r order.Order) Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked(r)
}

func (c *Cache) mergeLocked(r order.Order) Delta {
	existing, ok := c.byID[r.ID]
	if !ok {
		e := &entry{order: r, lastSeenAt: c.now()}
		c.byID[r.ID] = e
		c.insertSorted(e)
		after := r
		return Delta{Op: OpInserted, After: &after}
	}

	// Stale duplicate: the bulk fetch re-delivering an order already
	// updated live, or an out-of-order delivery.
	if !existing.order.UpdatedAt.IsZero() && !r.UpdatedAt.After(existing.order.UpdatedAt) {
		return Delta{Op: OpDiscarded}
	}

	before := existing.order
	existing.order = r
	existing.lastSeenAt = c.now()
	// CreatedAt is immutable upstream, so the sort position holds. If a
	// malformed producer changed it anyway, restore the invariant.
	if !r.CreatedAt.Equal(before.CreatedAt) {
		c.removeSorted(existing, before)
		c.insertSorted(existing)
	}
	after := r
	return Delta{Op: OpUpdated, Before: &before, After: &after}
}

func (c *Cache) remove(id string) Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Cache) removeLocked(id string) Delta {
	e, ok := c.byID[id]
	if !ok {
		return Delta{Op: OpDiscarded}
	}
	before := e.order
	delete(c.byID, id)
	c.removeSorted(e, before)
	return Delta{Op: OpRemoved, Before: &before}
}

// insertSorted places e at its ordered position via binary search; per-event
// cost stays sublinear in collection size for the search, linear only in the
// tail copy.
func (c *Cache) insertSorted(e *entry) {
	i := sort.Search(len(c.sorted), func(i int) bool {
		return !c.before(c.sorted[i], e)
	})
	c.sorted = append(c.sorted, nil)
	copy(c.sorted[i+1:], c.sorted[i:])
	c.sorted[i] = e
}

func (c *Cache) removeSorted(e *entry, at order.Order) {
	i := sort.Search(len(c.sorted), func(i int) bool {
		o := c.sorted[i].order
		if !o.CreatedAt.Equal(at.CreatedAt) {
			return o.CreatedAt.Before(at.CreatedAt)
		}
		return o.ID >= at.ID
	})
	for i < len(c.sorted) && c.sorted[i] != e {
		i++
	}
	if i < len(c.sorted) {
		c.sorted = append(c.sorted[:i], c.sorted[i+1:]...)
	}
}

// before reports whether a sorts strictly ahead of b: created_at descending,
// id ascending as a deterministic tie-break.
func (c *Cache) before(a, b *entry) bool {
	if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
		return a.order.CreatedAt.After(b.order.CreatedAt)
	}
	return a.order.ID < b.order.ID
}

func (c *Cache) notify(d Delta) {
	if d.Op == OpDiscarded {
		return
	}
	for _, s := range c.subs {
		s.Applied(d)
	}
}
