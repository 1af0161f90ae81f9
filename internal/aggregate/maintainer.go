package aggregate

import (
	"sync"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/cache"
	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

// DayWindow is the number of labelled day buckets the dashboard shows.
const DayWindow = 7

// DayBucket is one labelled day in the sales-by-day view.
type DayBucket struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	SalesCents int64  `json:"sales_cents"`
	Sales      string `json:"sales"`
	Count      int    `json:"count"`
}

// Snapshot is the derived, read-only summary the dashboard renders.
// Consumers only ever see copies; the maintainer owns the buckets.
type Snapshot struct {
	TotalSalesCents int64                `json:"total_sales_cents"`
	TotalSales      string               `json:"total_sales"`
	OrderCount      int                  `json:"order_count"`
	Days            []DayBucket          `json:"days"`
	StatusCounts    map[order.Status]int `json:"status_counts"`
	HourlyToday     [24]int              `json:"hourly_today"`
}

type dayTotals struct {
	salesCents int64
	count      int
	hours      [24]int
}

// Maintainer keeps the aggregate snapshot current by applying each cache
// delta incrementally instead of recomputing from scratch per event. It
// implements cache.Subscriber.
type Maintainer struct {
	mu         sync.RWMutex
	loc        *time.Location
	totalCents int64
	count      int
	days       map[string]*dayTotals
	statuses   map[order.Status]int
	now        func() time.Time // injectable for tests
}

func NewMaintainer(loc *time.Location) *Maintainer {
	if loc == nil {
		loc = time.Local
	}
	return &Maintainer{
		loc:      loc,
		days:     make(map[string]*dayTotals),
		statuses: make(map[order.Status]int),
		now:      time.Now,
	}
}

// Applied adjusts the buckets for one cache delta. An update reverses the
// before-image and applies the after-image, which covers status moves and
// the unexpected-but-not-forbidden total change in one rule.
func (m *Maintainer) Applied(d cache.Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Before != nil {
		m.apply(*d.Before, -1)
	}
	if d.After != nil {
		m.apply(*d.After, +1)
	}
}

// Resynced discards every bucket and rebuilds once from the reconciled cache.
// After a reconnect the gap is unknowable, so correctness wins over
// incrementality here.
func (m *Maintainer) Resynced(orders []order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCents = 0
	m.count = 0
	m.days = make(map[string]*dayTotals)
	m.statuses = make(map[order.Status]int)
	for _, o := range orders {
		m.apply(o, +1)
	}
}

func (m *Maintainer) apply(o order.Order, sign int) {
	m.totalCents += int64(sign) * o.TotalCents
	m.count += sign
	m.statuses[o.Status] += sign

	key, ok := order.DayKey(o.CreatedAt, m.loc)
	if !ok {
		// Unbucketed: still counted in totals, excluded from histograms.
		return
	}
	day := m.days[key]
	if day == nil {
		day = &dayTotals{}
		m.days[key] = day
	}
	day.salesCents += int64(sign) * o.TotalCents
	day.count += sign
	if hour, ok := order.HourKey(o.CreatedAt, m.loc); ok {
		day.hours[hour] += sign
	}
}

// Snapshot materializes the last DayWindow day buckets (oldest first) and
// today's hourly counts as an immutable copy.
func (m *Maintainer) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		TotalSalesCents: m.totalCents,
		TotalSales:      order.FormatCents(m.totalCents),
		OrderCount:      m.count,
		Days:            make([]DayBucket, 0, DayWindow),
		StatusCounts:    make(map[order.Status]int, len(m.statuses)),
	}
	// Emptied statuses drop out, keeping the snapshot identical to one
	// rebuilt from scratch.
	for s, n := range m.statuses {
		if n == 0 {
			continue
		}
		snap.StatusCounts[s] = n
	}

	today := m.now().In(m.loc)
	for i := DayWindow - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key, _ := order.DayKey(d, m.loc)
		bucket := DayBucket{Key: key, Label: order.DayLabel(d, m.loc)}
		if totals, ok := m.days[key]; ok {
			bucket.SalesCents = totals.salesCents
			bucket.Count = totals.count
		}
		bucket.Sales = order.FormatCents(bucket.SalesCents)
		snap.Days = append(snap.Days, bucket)
	}

	todayKey, _ := order.DayKey(today, m.loc)
	if totals, ok := m.days[todayKey]; ok {
		snap.HourlyToday = totals.hours
	}
	return snap
}
