package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Basi6788/romeo-s-emporium/internal/cache"
	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/notify"
)

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func makeOrder(id string, createdAt time.Time) order.Order {
	return order.Order{
		ID:         id,
		Status:     order.StatusPending,
		TotalCents: 1000,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func ids(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

// fakeSource hands the test a channel per successful connection; closing it
// simulates a transport drop.
type fakeSource struct {
	mu       sync.Mutex
	failLeft int
	calls    int
	opened   chan chan order.ChangeEvent
}

func newFakeSource(failures int) *fakeSource {
	return &fakeSource{failLeft: failures, opened: make(chan chan order.ChangeEvent, 8)}
}

func (s *fakeSource) Changes(ctx context.Context) (<-chan order.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failLeft > 0 {
		s.failLeft--
		return nil, errors.New("transport down")
	}
	ch := make(chan order.ChangeEvent, 16)
	s.opened <- ch
	return ch, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fetchResult struct {
	orders []order.Order
	err    error
}

// fakeFetcher serves a scripted result per call, repeating the last one.
// An optional gate blocks every fetch until released.
type fakeFetcher struct {
	mu     sync.Mutex
	script []fetchResult
	calls  int
	gate   chan struct{}
}

func (f *fakeFetcher) FetchOrders(ctx context.Context) ([]order.Order, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	if i < 0 {
		return nil, nil
	}
	r := f.script[i]
	return r.orders, r.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(source Source, fetcher BulkFetcher) (*Client, *cache.Cache, *notify.Emitter) {
	c := cache.New()
	emitter := notify.NewEmitter()
	client := NewClient(source, fetcher, c, emitter)
	client.BackoffBase = time.Millisecond
	client.BackoffCap = 5 * time.Millisecond
	return client, c, emitter
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestClient_LiveInsertBeforeFetchResolves(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{
		gate: make(chan struct{}),
		script: []fetchResult{{orders: []order.Order{
			makeOrder("A", base),
			makeOrder("B", base.Add(-time.Hour)),
		}}},
	}
	client, c, emitter := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	defer client.Close()

	ch := <-source.opened
	ch <- order.ChangeEvent{Kind: order.ChangeInsert, Record: makeOrder("C", base.Add(5*time.Minute))}
	waitFor(t, func() bool { return c.Len() == 1 }, "live insert lands before the fetch")

	close(fetcher.gate)
	waitFor(t, func() bool { return c.Len() == 3 }, "bulk fetch merges")

	assert.Equal(t, []string{"C", "A", "B"}, ids(c.Snapshot()))

	notifications := emitter.Notifications()
	require.Len(t, notifications, 1, "only the live insert is news")
	assert.Equal(t, "C", notifications[0].Order.ID)
}

func TestClient_BulkFetchNeverNotifies(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{script: []fetchResult{{orders: []order.Order{
		makeOrder("A", base),
		makeOrder("B", base.Add(-time.Hour)),
	}}}}
	client, c, emitter := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	defer client.Close()

	<-source.opened
	waitFor(t, func() bool { return c.Len() == 2 }, "bulk fetch merges")
	assert.Zero(t, emitter.UnreadCount())
}

func TestClient_UpdatesAndStaleEventsNeverNotify(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{}
	client, c, emitter := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	defer client.Close()

	ch := <-source.opened
	a := makeOrder("A", base)
	ch <- order.ChangeEvent{Kind: order.ChangeInsert, Record: a}

	updatedA := a
	updatedA.Status = order.StatusShipped
	updatedA.UpdatedAt = base.Add(time.Minute)
	ch <- order.ChangeEvent{Kind: order.ChangeUpdate, Record: updatedA}
	// A re-delivered insert for a known order is a stale duplicate.
	ch <- order.ChangeEvent{Kind: order.ChangeInsert, Record: a}

	waitFor(t, func() bool {
		got, ok := c.Get("A")
		return ok && got.Status == order.StatusShipped
	}, "update applied")
	assert.Equal(t, 1, emitter.UnreadCount())
}

func TestClient_ReconnectResyncsAfterBackoff(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{script: []fetchResult{
		{orders: []order.Order{makeOrder("A", base), makeOrder("B", base.Add(time.Minute))}},
		{orders: []order.Order{makeOrder("A", base)}},
	}}
	client, c, _ := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	defer client.Close()

	ch := <-source.opened
	waitFor(t, func() bool { return c.Len() == 2 }, "initial snapshot")

	// Transport drops; the reconnect fetch no longer contains B, which was
	// deleted during the gap.
	source.mu.Lock()
	source.failLeft = 2
	source.mu.Unlock()
	close(ch)

	<-source.opened
	waitFor(t, func() bool { return c.Len() == 1 }, "resync prunes the gap delete")
	assert.Equal(t, []string{"A"}, ids(c.Snapshot()))
	assert.GreaterOrEqual(t, source.Calls(), 4, "two failed attempts before the reconnect")
	assert.Equal(t, 2, fetcher.Calls(), "each successful connect issues one bulk fetch")
	assert.Equal(t, StateSubscribed, client.State())
}

func TestClient_FetchErrorKeepsServingStaleData(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{script: []fetchResult{
		{orders: []order.Order{makeOrder("A", base)}},
		{err: errors.New("bulk read failed")},
		{orders: []order.Order{makeOrder("A", base), makeOrder("C", base.Add(time.Minute))}},
	}}
	client, c, _ := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	defer client.Close()

	ch := <-source.opened
	waitFor(t, func() bool { return c.Len() == 1 }, "initial snapshot")

	// First reconnect: the fetch fails, the cache keeps what it held.
	close(ch)
	ch = <-source.opened
	waitFor(t, func() bool { return fetcher.Calls() == 2 }, "failed fetch attempted")
	assert.Equal(t, []string{"A"}, ids(c.Snapshot()))

	// Second reconnect: the fetch succeeds and closes the gap.
	close(ch)
	<-source.opened
	waitFor(t, func() bool { return c.Len() == 2 }, "retried fetch supersedes the gap")
	assert.Equal(t, []string{"C", "A"}, ids(c.Snapshot()))
}

func TestClient_States(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	client, _, _ := newTestClient(source, fetcher)

	assert.Equal(t, StateIdle, client.State())

	require.NoError(t, client.Start())
	ch := <-source.opened
	waitFor(t, func() bool { return client.State() == StateSubscribed }, "subscribed after connect")

	source.mu.Lock()
	source.failLeft = 1000
	source.mu.Unlock()
	close(ch)
	close(fetcher.gate)
	waitFor(t, func() bool { return client.State() == StateReconnecting }, "reconnecting after drop")

	client.Close()
	assert.Equal(t, StateClosed, client.State())
}

func TestClient_CloseIsSynchronousAndTerminal(t *testing.T) {
	source := newFakeSource(0)
	fetcher := &fakeFetcher{gate: make(chan struct{})} // fetch blocks until cancelled
	client, _, _ := newTestClient(source, fetcher)
	require.NoError(t, client.Start())
	<-source.opened

	done := make(chan struct{})
	go func() {
		client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return; the subscription outlived its owner")
	}

	// Idempotent, and terminal for this instance.
	client.Close()
	assert.Equal(t, StateClosed, client.State())
	assert.ErrorIs(t, client.Start(), ErrClosed)
}

func TestClient_CloseWithoutStart(t *testing.T) {
	client, _, _ := newTestClient(newFakeSource(0), &fakeFetcher{})
	client.Close()
	assert.Equal(t, StateClosed, client.State())
}

func TestClient_FailedOpenEntersReconnecting(t *testing.T) {
	source := newFakeSource(1 << 30) // never connects
	client, _, _ := newTestClient(source, &fakeFetcher{})
	client.BackoffBase = time.Hour
	client.BackoffCap = time.Hour
	require.NoError(t, client.Start())
	defer client.Close()

	waitFor(t, func() bool { return client.State() == StateReconnecting },
		"a failed open must surface as reconnecting, not linger at connecting")
}

func TestClient_CloseDuringBackoff(t *testing.T) {
	source := newFakeSource(1 << 30) // never connects
	client, _, _ := newTestClient(source, &fakeFetcher{})
	client.BackoffBase = time.Hour
	client.BackoffCap = time.Hour
	require.NoError(t, client.Start())

	waitFor(t, func() bool { return source.Calls() >= 1 }, "first attempt made")

	done := make(chan struct{})
	go func() {
		client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the pending backoff timer")
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	client := NewClient(newFakeSource(0), &fakeFetcher{}, cache.New(), nil)

	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := client.backoff(attempt)
		assert.LessOrEqual(t, d, client.BackoffCap)
		assert.GreaterOrEqual(t, d, client.BackoffBase/2)
		if attempt <= 5 {
			assert.GreaterOrEqual(t, d*2, prevMax, "attempt %d", attempt)
		}
		prevMax = d
	}
	// Deep attempts sit at the cap, jitter aside.
	assert.GreaterOrEqual(t, client.backoff(10), client.BackoffCap/2)
}
