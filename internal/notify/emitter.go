package notify

import (
	"sync"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/google/uuid"
)

// Capacity bounds the feed; beyond it the oldest notifications are dropped,
// not archived. This is a live-activity feed, not an inbox.
const Capacity = 10

// Notification is one "new order" entry for the bell panel.
type Notification struct {
	ID         string      `json:"id"`
	Order      order.Order `json:"order"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Emitter surfaces the orders that are genuinely new during this admin
// session: one notification per live insert event, never for updates and
// never for the initial bulk fetch, which is known history rather than news.
type Emitter struct {
	mu    sync.RWMutex
	items []Notification // most recent first
	now   func() time.Time
}

func NewEmitter() *Emitter {
	return &Emitter{now: time.Now}
}

// Push records a newly inserted order at the head of the feed.
func (e *Emitter) Push(o order.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := Notification{
		ID:         uuid.New().String(),
		Order:      o,
		ReceivedAt: e.now(),
	}
	e.items = append([]Notification{n}, e.items...)
	if len(e.items) > Capacity {
		e.items = e.items[:Capacity]
	}
}

// Notifications returns a copy of the feed, most recent first.
func (e *Emitter) Notifications() []Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Notification, len(e.items))
	copy(out, e.items)
	return out
}

// UnreadCount is the current feed length.
func (e *Emitter) UnreadCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.items)
}

// Clear empties the feed. Session-scoped only; nothing is acknowledged
// upstream and nothing resurfaces in a fresh session.
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = nil
}
