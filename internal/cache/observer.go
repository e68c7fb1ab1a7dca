package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/abelbrown/newsfeed/internal/diff"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/paging"
)

// Update pairs a snapshot with the operations that turn the observer's
// previously delivered items into the snapshot's items.
type Update struct {
	Snapshot *paging.Snapshot
	Ops      []diff.Op[model.Article]
}

// Observer is one consumer attached to a cached session. Snapshots are
// delivered latest-wins: a slow reader may skip intermediate ones but always
// sees the newest, and never sees an older one after a newer one.
type Observer struct {
	ID uuid.UUID

	cache *Cache
	entry *entry
	ch    chan *paging.Snapshot

	mu     sync.Mutex
	sent   uint64
	closed bool

	// last is the item list handed out by Next. Only Next touches it.
	last []model.Article
}

func newObserver(c *Cache, e *entry) *Observer {
	return &Observer{
		ID:    uuid.New(),
		cache: c,
		entry: e,
		ch:    make(chan *paging.Snapshot, 1),
	}
}

// offer queues snap, replacing any undelivered one. Versions that are not
// newer than the last offered are ignored.
func (o *Observer) offer(snap *paging.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || snap.Version <= o.sent {
		return
	}
	o.sent = snap.Version
	select {
	case <-o.ch:
	default:
	}
	o.ch <- snap
}

// shut closes the delivery channel. It reports false if already closed.
func (o *Observer) shut() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.closed = true
	close(o.ch)
	return true
}

// Query returns the observed query.
func (o *Observer) Query() model.Query { return o.entry.query }

// Updates returns the delivery channel. It is closed when the observer is.
func (o *Observer) Updates() <-chan *paging.Snapshot { return o.ch }

// Snapshot returns the session's latest snapshot, or nil before the first.
func (o *Observer) Snapshot() *paging.Snapshot {
	o.entry.mu.Lock()
	defer o.entry.mu.Unlock()
	return o.entry.latest
}

// Next waits for the next snapshot and diffs it against the items returned
// by the previous call. Next must not be called concurrently with itself or
// mixed with reads from Updates.
func (o *Observer) Next(ctx context.Context) (Update, error) {
	select {
	case <-ctx.Done():
		return Update{}, ctx.Err()
	case snap, ok := <-o.ch:
		if !ok {
			return Update{}, ErrClosed
		}
		ops := diff.Compute(o.last, snap.Items)
		o.last = snap.Items
		return Update{Snapshot: snap, Ops: ops}, nil
	}
}

// Close detaches the observer from the cache.
func (o *Observer) Close() { o.cache.Unsubscribe(o) }

// Append asks the session for the next page.
func (o *Observer) Append() { o.entry.session.Append() }

// Prepend asks the session for the previous page.
func (o *Observer) Prepend() { o.entry.session.Prepend() }

// Access reports the consumer's position in the latest snapshot.
func (o *Observer) Access(index int) { o.entry.session.Access(index) }

// Retry re-attempts failed loads.
func (o *Observer) Retry() { o.entry.session.Retry() }

// Refresh reloads the session from its first page.
func (o *Observer) Refresh() { o.entry.session.Refresh() }
