package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/aggregate"
	"github.com/Basi6788/romeo-s-emporium/internal/cache"
	"github.com/Basi6788/romeo-s-emporium/internal/feed"
	"github.com/Basi6788/romeo-s-emporium/internal/notify"
)

// Session owns the single logical subscription of one admin context. All
// three consumers share it through the cache; no consumer ever opens its own
// connection. The subscription exists only while the admin predicate holds:
// the gate opening acquires it, the gate closing (or Close) releases it on
// every path.
type Session struct {
	source  feed.Source
	fetcher feed.BulkFetcher

	cache      *cache.Cache
	maintainer *aggregate.Maintainer
	emitter    *notify.Emitter

	mu     sync.Mutex
	client *feed.Client
	closed bool
}

// NewSession wires the cache, aggregate maintainer and notification emitter
// together. The feed stays down until SetAuthorized(true).
func NewSession(source feed.Source, fetcher feed.BulkFetcher, loc *time.Location) *Session {
	c := cache.New()
	m := aggregate.NewMaintainer(loc)
	c.Subscribe(m)
	return &Session{
		source:     source,
		fetcher:    fetcher,
		cache:      c,
		maintainer: m,
		emitter:    notify.NewEmitter(),
	}
}

// Cache exposes the shared reconciliation cache for read-only consumers.
func (s *Session) Cache() *cache.Cache { return s.cache }

// Maintainer exposes the aggregate snapshot owner.
func (s *Session) Maintainer() *aggregate.Maintainer { return s.maintainer }

// Emitter exposes the bounded notification feed.
func (s *Session) Emitter() *notify.Emitter { return s.emitter }

// SetAuthorized flips the admin gate. True starts a fresh feed client if none
// is running; false synchronously tears the running one down. Feed client
// instances are single-use, so a re-opened gate gets a new client (and with
// it a fresh bulk fetch).
func (s *Session) SetAuthorized(authorized bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if authorized {
		if s.client != nil {
			s.mu.Unlock()
			return
		}
		client := feed.NewClient(s.source, s.fetcher, s.cache, s.emitter)
		s.client = client
		s.mu.Unlock()
		if err := client.Start(); err != nil {
			log.Printf("[Session] Failed to start feed: %v", err)
		}
		return
	}

	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
		log.Printf("[Session] Feed released")
	}
}

// FeedState reports the subscription state; idle when the gate is shut.
func (s *Session) FeedState() feed.State {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return feed.StateIdle
	}
	return client.State()
}

// Close releases the subscription for good. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}
