package feed

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/cache"
	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/notify"
)

// State of the change feed subscription.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

var ErrClosed = errors.New("feed client is closed")

// Source is the live half of the CDC contract: Changes opens the channel,
// which closes when the transport drops. The client never retries inside a
// single Changes call; reconnection is its own state.
type Source interface {
	Changes(ctx context.Context) (<-chan order.ChangeEvent, error)
}

// BulkFetcher is the snapshot half: all current orders, created_at descending.
type BulkFetcher interface {
	FetchOrders(ctx context.Context) ([]order.Order, error)
}

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// Client owns the subscription's connection lifecycle: connect, receive,
// reconnect with backoff, close. All failures are swallowed here and surface
// only as the Reconnecting state; events flow to the cache one at a time in
// arrival order.
//
// A Client is single-use. Closed is terminal; the session layer constructs a
// fresh client when the admin gate reopens.
type Client struct {
	source  Source
	fetcher BulkFetcher
	cache   *cache.Cache
	emitter *notify.Emitter

	// Backoff tuning, overridable before Start.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient wires a client to its transports and sinks. emitter may be nil
// when no notification consumer exists.
func NewClient(source Source, fetcher BulkFetcher, c *cache.Cache, emitter *notify.Emitter) *Client {
	return &Client{
		source:      source,
		fetcher:     fetcher,
		cache:       c,
		emitter:     emitter,
		BackoffBase: defaultBackoffBase,
		BackoffCap:  defaultBackoffCap,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the subscription. It returns immediately; the receive loop
// runs until Close.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateConnecting
	go c.run(ctx)
	return nil
}

// Close tears the subscription down: it cancels any in-flight fetch, receive
// or backoff timer and waits for the run goroutine before returning, so no
// zombie subscription outlives the owning session.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	wasIdle := c.state == StateIdle
	c.state = StateClosed
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if wasIdle {
		return
	}
	cancel()
	<-done
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	needResync := false
	disconnectedAt := time.Time{}

	for {
		if ctx.Err() != nil {
			return
		}

		ch, err := c.source.Changes(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Feed] Failed to open change channel: %v", err)
			c.setState(StateReconnecting)
			attempt++
			if !c.waitBackoff(ctx, attempt) {
				return
			}
			continue
		}

		// The bulk fetch runs concurrently with the live channel; the
		// cache's merge rule tolerates either finishing first.
		fetchDone := make(chan struct{})
		resync := needResync
		cutoff := disconnectedAt
		go func() {
			defer close(fetchDone)
			c.bulkFetch(ctx, resync, cutoff)
		}()

		c.setState(StateSubscribed)
		attempt = 0
		log.Printf("[Feed] Subscribed")

		c.consume(ctx, ch, fetchDone)
		if ctx.Err() != nil {
			return
		}
		// Channel closed underneath us: transport error. The events lost
		// in the gap are not replayed; the next bulk fetch supersedes them.
		disconnectedAt = time.Now()
		needResync = true
		c.setState(StateReconnecting)
		attempt++
		log.Printf("[Feed] Transport dropped, reconnecting (attempt %d)", attempt)
		if !c.waitBackoff(ctx, attempt) {
			return
		}
	}
}

// consume drains the live channel until it closes or ctx is cancelled. The
// bulk fetch goroutine is always waited on so two fetches are never in
// flight at once.
func (c *Client) consume(ctx context.Context, ch <-chan order.ChangeEvent, fetchDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			<-fetchDone
			return
		case ev, open := <-ch:
			if !open {
				<-fetchDone
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Client) handle(ev order.ChangeEvent) {
	d, err := c.cache.ApplyChange(ev)
	if err != nil {
		// Single offending record discarded; processing continues.
		return
	}
	if c.emitter != nil && ev.Kind == order.ChangeInsert && d.Op == cache.OpInserted {
		c.emitter.Push(ev.Record)
	}
}

// bulkFetch loads the snapshot and reconciles it. On failure the cache keeps
// serving whatever it last held; the fetch is retried on the next reconnect
// cycle.
func (c *Client) bulkFetch(ctx context.Context, resync bool, disconnectedAt time.Time) {
	records, err := c.fetcher.FetchOrders(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[Feed] Bulk fetch failed: %v", err)
		}
		return
	}
	if resync {
		c.cache.Resync(records, disconnectedAt)
	} else {
		c.cache.MergeSnapshot(records)
	}
	log.Printf("[Feed] Bulk fetch merged, %d orders", len(records))
}

// waitBackoff sleeps for the attempt's backoff interval. The timer is
// cancellable; only one reconnect attempt is ever outstanding.
func (c *Client) waitBackoff(ctx context.Context, attempt int) bool {
	d := c.backoff(attempt)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoff returns an exponential interval with jitter: base 1s doubling per
// attempt, capped at 30s, randomized across the upper half to spread
// reconnect storms.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.BackoffBase
	for i := 1; i < attempt && d < c.BackoffCap; i++ {
		d *= 2
	}
	if d > c.BackoffCap {
		d = c.BackoffCap
	}
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}
