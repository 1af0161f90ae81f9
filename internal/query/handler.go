package query

import (
	"strings"

	"github.com/Basi6788/romeo-s-emporium/internal/aggregate"
	"github.com/Basi6788/romeo-s-emporium/internal/cache"
	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/feed"
	"github.com/Basi6788/romeo-s-emporium/internal/notify"
)

// recentOrders is how many latest orders the dashboard shows next to the
// aggregate charts.
const recentOrders = 5

// Dashboard is the projection the analytics dashboard renders.
type Dashboard struct {
	Aggregates aggregate.Snapshot `json:"aggregates"`
	Recent     []order.Order      `json:"recent"`
}

// Filter narrows the order table locally, without re-querying upstream.
type Filter struct {
	Status order.Status
	Search string
}

// FeedStater exposes the subscription state without coupling the read side
// to the client's lifecycle.
type FeedStater interface {
	FeedState() feed.State
}

// Handler is the read-only fan-out surface: three projections over the one
// shared cache, aggregate snapshot and notification feed. It never touches
// the raw change feed.
type Handler struct {
	cache      *cache.Cache
	maintainer *aggregate.Maintainer
	emitter    *notify.Emitter
	feed       FeedStater
}

func NewHandler(c *cache.Cache, m *aggregate.Maintainer, e *notify.Emitter, f FeedStater) *Handler {
	return &Handler{cache: c, maintainer: m, emitter: e, feed: f}
}

// Dashboard returns the aggregate snapshot plus the most recent orders.
func (h *Handler) Dashboard() Dashboard {
	return Dashboard{
		Aggregates: h.maintainer.Snapshot(),
		Recent:     h.cache.Recent(recentOrders),
	}
}

// Orders returns the full ordered collection narrowed by f. Search matches
// order id, customer name and email, case-insensitive.
func (h *Handler) Orders(f Filter) []order.Order {
	all := h.cache.Snapshot()
	if f.Status == "" && f.Search == "" {
		return all
	}
	needle := strings.ToLower(f.Search)
	out := make([]order.Order, 0, len(all))
	for _, o := range all {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if needle != "" && !matches(o, needle) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matches(o order.Order, needle string) bool {
	return strings.Contains(strings.ToLower(o.ID), needle) ||
		strings.Contains(strings.ToLower(o.CustomerName), needle) ||
		strings.Contains(strings.ToLower(o.Email), needle)
}

// Order returns a single cached order.
func (h *Handler) Order(id string) (order.Order, bool) {
	return h.cache.Get(id)
}

// Notifications returns the bounded new-order feed, most recent first.
func (h *Handler) Notifications() []notify.Notification {
	return h.emitter.Notifications()
}

// UnreadCount is the bell badge value.
func (h *Handler) UnreadCount() int {
	return h.emitter.UnreadCount()
}

// MarkRead clears the bell feed for this session.
func (h *Handler) MarkRead() {
	h.emitter.Clear()
}

// FeedState reports the subscription state so the UI can render a
// reconnecting affordance instead of silently going stale.
func (h *Handler) FeedState() feed.State {
	if h.feed == nil {
		return feed.StateIdle
	}
	return h.feed.FeedState()
}
