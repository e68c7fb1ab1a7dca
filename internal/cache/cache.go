// Package cache shares one paging session per query among any number of
// observers.
//
// A session is created on the first Subscribe for a query and keeps running
// while at least one observer is attached. When the last observer leaves,
// the session stays warm for a grace period so a quick resubscribe reuses
// it; after that it is closed and its in-flight loads are cancelled.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/newsfeed/internal/fetch"
	"github.com/abelbrown/newsfeed/internal/metrics"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
	"github.com/abelbrown/newsfeed/internal/paging"
)

// DefaultGracePeriod is how long an unobserved session stays warm.
const DefaultGracePeriod = 5 * time.Second

// ErrClosed is returned after the cache or an observer has been closed.
var ErrClosed = errors.New("cache: closed")

// Factory builds an unstarted session for q. The session must deliver its
// snapshots to publish.
type Factory func(q model.Query, publish func(*paging.Snapshot)) *paging.Session

// SessionFactory returns a Factory that creates sessions over loader with
// opts. opts.Publish is replaced.
func SessionFactory(loader fetch.PageLoader, opts paging.Options) Factory {
	return func(q model.Query, publish func(*paging.Snapshot)) *paging.Session {
		o := opts
		o.Publish = publish
		return paging.New(q, loader, o)
	}
}

// Options configures a Cache.
type Options struct {
	// GracePeriod defaults to DefaultGracePeriod. A negative value evicts
	// as soon as the last observer leaves.
	GracePeriod time.Duration
	Logger      *otel.Logger
	Metrics     *metrics.Metrics
}

// Cache is the registry of live sessions keyed by query.
type Cache struct {
	factory Factory
	grace   time.Duration
	log     *otel.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[model.Query]*entry
	closed  bool
}

// entry is one cached session. observers and latest are guarded by mu;
// evict and evictSeq by the cache mutex.
type entry struct {
	query   model.Query
	session *paging.Session

	mu        sync.Mutex
	observers map[*Observer]struct{}
	latest    *paging.Snapshot

	evict    *time.Timer
	evictSeq uint64
}

// New creates an empty cache.
func New(factory Factory, opts Options) *Cache {
	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		factory: factory,
		grace:   grace,
		log:     otel.OrNull(opts.Logger),
		metrics: opts.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[model.Query]*entry),
	}
}

// Subscribe attaches a new observer to the session for q, creating and
// starting the session if none is cached. The latest snapshot, if any, is
// queued for the observer before any later one.
func (c *Cache) Subscribe(q model.Query) (*Observer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := c.entries[q]
	if !ok {
		e = &entry{query: q, observers: make(map[*Observer]struct{})}
		e.session = c.factory(q, e.publish)
		e.session.Start(c.ctx)
		c.entries[q] = e
		c.metrics.SessionOpened()
	}
	if e.evict != nil {
		e.evict.Stop()
		e.evict = nil
	}

	o := newObserver(c, e)
	e.mu.Lock()
	e.observers[o] = struct{}{}
	if e.latest != nil {
		o.offer(e.latest)
	}
	n := len(e.observers)
	e.mu.Unlock()
	c.mu.Unlock()

	// Session methods may wait on the owner goroutine, which may be
	// publishing; never call them with a cache lock held.
	e.session.Demand()

	c.metrics.ObserverAttached()
	c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindCacheSubscribe, Comp: "cache",
		Query: q.String(), Observers: n, Msg: o.ID.String()})
	return o, nil
}

// Unsubscribe detaches o. It is the same as o.Close.
func (c *Cache) Unsubscribe(o *Observer) {
	if !o.shut() {
		return
	}
	e := o.entry

	c.mu.Lock()
	e.mu.Lock()
	delete(e.observers, o)
	n := len(e.observers)
	e.mu.Unlock()

	if n == 0 && !c.closed && c.entries[e.query] == e {
		e.evictSeq++
		seq := e.evictSeq
		if c.grace < 0 {
			e.evict = time.AfterFunc(0, func() { c.expire(e, seq) })
		} else {
			e.evict = time.AfterFunc(c.grace, func() { c.expire(e, seq) })
		}
	}
	c.mu.Unlock()

	c.metrics.ObserverDetached()
	c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindCacheUnsubscribe, Comp: "cache",
		Query: e.query.String(), Observers: n, Msg: o.ID.String()})
}

// expire closes e if it is still unobserved and seq is its latest timer.
func (c *Cache) expire(e *entry, seq uint64) {
	c.mu.Lock()
	if e.evict == nil || e.evictSeq != seq || c.entries[e.query] != e {
		c.mu.Unlock()
		return
	}
	e.mu.Lock()
	n := len(e.observers)
	e.mu.Unlock()
	if n > 0 {
		c.mu.Unlock()
		return
	}
	e.evict = nil
	delete(c.entries, e.query)
	c.mu.Unlock()

	e.session.Close()
	c.metrics.SessionEvicted()
	c.metrics.SessionClosed()
	c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindCacheEvict, Comp: "cache",
		Query: e.query.String(), Msg: "grace period elapsed"})
}

// Len returns the number of cached sessions, warm ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Observers returns the number of observers attached to q's session.
func (c *Cache) Observers(q model.Query) int {
	c.mu.Lock()
	e, ok := c.entries[q]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers)
}

// Close closes every observer and session. Later calls to Subscribe return
// ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.evict != nil {
			e.evict.Stop()
			e.evict = nil
		}
		entries = append(entries, e)
	}
	c.entries = make(map[model.Query]*entry)
	c.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			e.mu.Lock()
			observers := make([]*Observer, 0, len(e.observers))
			for o := range e.observers {
				observers = append(observers, o)
			}
			e.observers = make(map[*Observer]struct{})
			e.mu.Unlock()

			for _, o := range observers {
				if o.shut() {
					c.metrics.ObserverDetached()
				}
			}
			e.session.Close()
			c.metrics.SessionClosed()
			return nil
		})
	}
	err := g.Wait()
	c.cancel()
	return err
}

// publish runs on the session's owner goroutine.
func (e *entry) publish(snap *paging.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest = snap
	for o := range e.observers {
		o.offer(snap)
	}
}
