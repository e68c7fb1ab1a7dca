// Package paging implements the per-query paging state machine.
//
// A Session owns the pages loaded for one query. All state lives on a single
// goroutine started by Start; the exported methods only enqueue commands, so
// they are safe from any goroutine and never wait on the network. Page loads
// run on their own goroutines and report back to the owner, which discards
// results that belong to an earlier generation.
package paging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/newsfeed/internal/fetch"
	"github.com/abelbrown/newsfeed/internal/metrics"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
)

// DefaultPrefetchDistance matches one upstream page of 20 articles.
const DefaultPrefetchDistance = 20

// commandBuffer bounds queued commands before senders wait on the owner.
const commandBuffer = 32

// Options configures a Session.
type Options struct {
	InitialKey       model.PageKey // defaults to model.FirstPage
	PrefetchDistance int           // defaults to DefaultPrefetchDistance
	Timeout          time.Duration // per-attempt load deadline; 0 disables
	Retry            RetryPolicy   // zero value means DefaultRetryPolicy
	Logger           *otel.Logger
	Metrics          *metrics.Metrics
	// Publish receives every snapshot on the owner goroutine, in order.
	// It must not block.
	Publish func(*Snapshot)
}

// Session is the paging state machine for one query.
type Session struct {
	query  model.Query
	loader fetch.PageLoader
	opts   Options
	log    *otel.Logger

	cmds    chan func()
	results chan result

	snap atomic.Pointer[Snapshot]

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
	once    sync.Once

	// Owned by the run goroutine.
	demanded bool
	loaded   bool
	gen      uint64
	version  uint64
	pages    []loadedPage
	initial  lane
	forward  lane
	backward lane
}

// result is what a load goroutine reports to the owner.
type result struct {
	gen  uint64
	dir  Direction
	key  model.PageKey
	page model.Page
	err  error
	dur  time.Duration
}

// New creates an idle session for q. Call Start before any other method.
func New(q model.Query, loader fetch.PageLoader, opts Options) *Session {
	if !opts.InitialKey.Valid() {
		opts.InitialKey = model.FirstPage
	}
	if opts.PrefetchDistance <= 0 {
		opts.PrefetchDistance = DefaultPrefetchDistance
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}

	s := &Session{
		query:    q,
		loader:   fetch.WithTimeout(loader, opts.Timeout),
		opts:     opts,
		log:      otel.OrNull(opts.Logger),
		cmds:     make(chan func(), commandBuffer),
		results:  make(chan result),
		done:     make(chan struct{}),
		initial:  lane{dir: Initial},
		forward:  lane{dir: Forward},
		backward: lane{dir: Backward},
	}
	s.snap.Store(&Snapshot{Query: q, Status: Status{Phase: Idle}})
	return s
}

// Query returns the session's query.
func (s *Session) Query() model.Query { return s.query }

// Start launches the owner goroutine. The session stops when ctx is
// cancelled or Close is called. Start is a no-op after the first call.
func (s *Session) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSessionStart, Comp: "paging", Query: s.query.String()})
	go s.run()
}

// Snapshot returns the latest published snapshot.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close cancels in-flight loads and stops the owner goroutine. Results that
// arrive afterwards are dropped.
func (s *Session) Close() {
	if !s.started.Load() {
		s.once.Do(func() { close(s.done) })
		return
	}
	s.cancel()
	<-s.done
}

// Demand starts the initial load if it has not been requested yet.
func (s *Session) Demand() { s.do(s.demand) }

// Append loads the next page forward.
func (s *Session) Append() { s.do(func() { s.grow(&s.forward) }) }

// Prepend loads the previous page.
func (s *Session) Prepend() { s.do(func() { s.grow(&s.backward) }) }

// Access tells the session the consumer is looking at index of the current
// snapshot. Loads are issued when index is within the prefetch distance of
// either end.
func (s *Session) Access(index int) {
	s.do(func() {
		n := len(s.snap.Load().Items)
		if index >= n-s.opts.PrefetchDistance {
			s.grow(&s.forward)
		}
		if index < s.opts.PrefetchDistance {
			s.grow(&s.backward)
		}
	})
}

// Retry re-attempts every failed direction with the key that failed.
func (s *Session) Retry() { s.do(s.retry) }

// Refresh drops all pages and in-flight loads and reloads from the initial
// key. Terminal directions are reset.
func (s *Session) Refresh() { s.do(s.refresh) }

func (s *Session) do(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer s.once.Do(func() { close(s.done) })
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.cmds:
			fn()
		case r := <-s.results:
			s.handle(r)
		}
	}
}

func (s *Session) shutdown() {
	s.initial.stop()
	s.forward.stop()
	s.backward.stop()
	s.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSessionClose, Comp: "paging",
		Query: s.query.String(), Generation: s.gen, Count: len(s.snap.Load().Items)})
}

func (s *Session) demand() {
	if s.demanded {
		return
	}
	s.demanded = true
	s.initial.key = s.opts.InitialKey
	s.launch(&s.initial)
	s.publish()
}

func (s *Session) grow(l *lane) {
	if !s.loaded || l.end || l.inflight || l.err != nil || !l.key.Valid() {
		return
	}
	s.launch(l)
	s.publish()
}

func (s *Session) retry() {
	changed := false
	for _, l := range []*lane{&s.initial, &s.forward, &s.backward} {
		if l.err == nil || l.inflight {
			continue
		}
		l.err = nil
		s.launch(l)
		changed = true
	}
	if changed {
		s.publish()
	}
}

func (s *Session) refresh() {
	s.initial.stop()
	s.forward.stop()
	s.backward.stop()
	s.gen++
	s.pages = nil
	s.loaded = false
	s.initial = lane{dir: Initial}
	s.forward = lane{dir: Forward}
	s.backward = lane{dir: Backward}
	s.demanded = false

	s.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSessionRefresh, Comp: "paging",
		Query: s.query.String(), Generation: s.gen})
	s.demand()
}

// launch starts a load for l on its own goroutine.
func (s *Session) launch(l *lane) {
	ctx, cancel := context.WithCancel(s.ctx)
	l.inflight = true
	l.cancel = cancel

	req := LoadRequest{Direction: l.dir, Anchor: l.key}
	gen := s.gen
	s.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindPageLoad, Comp: "paging",
		Query: s.query.String(), Key: int(req.Anchor), Direction: req.Direction.String(), Generation: gen})

	go func() {
		defer cancel()
		start := time.Now()
		page, err := s.load(ctx, req)
		r := result{gen: gen, dir: req.Direction, key: req.Anchor, page: page, err: err, dur: time.Since(start)}
		select {
		case s.results <- r:
		case <-s.done:
		}
	}()
}

// load calls the loader, retrying transient failures per the retry policy.
func (s *Session) load(ctx context.Context, req LoadRequest) (model.Page, error) {
	attempts := s.opts.Retry.attempts()
	var err error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			delay := s.opts.Retry.delay(n)
			s.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindPageRetry, Comp: "paging",
				Query: s.query.String(), Key: int(req.Anchor), Direction: req.Direction.String(),
				Attempt: n, Dur: delay, Err: err.Error()})
			s.opts.Metrics.LoadRetried()

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return model.Page{}, fetch.Wrap(s.query, req.Anchor, ctx.Err())
			case <-t.C:
			}
		}

		var page model.Page
		page, err = s.loader.Fetch(ctx, s.query, req.Anchor)
		if err == nil {
			return page, nil
		}
		err = fetch.Wrap(s.query, req.Anchor, err)
		if ctx.Err() != nil {
			return model.Page{}, fetch.Wrap(s.query, req.Anchor, ctx.Err())
		}
		if !fetch.IsTransient(err) {
			return model.Page{}, err
		}
	}
	return model.Page{}, err
}

func (s *Session) lane(d Direction) *lane {
	switch d {
	case Forward:
		return &s.forward
	case Backward:
		return &s.backward
	default:
		return &s.initial
	}
}

func (s *Session) handle(r result) {
	ev := otel.Event{Comp: "paging", Query: s.query.String(), Key: int(r.key),
		Direction: r.dir.String(), Generation: r.gen, Dur: r.dur}

	if r.gen != s.gen {
		ev.Level, ev.Kind, ev.Msg = otel.LevelDebug, otel.KindPageDiscard, "stale generation"
		s.log.Emit(ev)
		s.opts.Metrics.ResultDiscarded()
		return
	}

	l := s.lane(r.dir)
	l.inflight = false
	l.cancel = nil

	if r.err != nil {
		kind := fetch.KindOf(r.err)
		if kind == fetch.Cancelled {
			ev.Level, ev.Kind, ev.Msg = otel.LevelDebug, otel.KindPageDiscard, "cancelled"
			s.log.Emit(ev)
			s.opts.Metrics.ResultDiscarded()
			s.publish()
			return
		}
		l.err = r.err
		ev.Level, ev.Kind, ev.ErrKind, ev.Err = otel.LevelError, otel.KindPageError, kind.String(), r.err.Error()
		s.log.Emit(ev)
		s.opts.Metrics.LoadFailed(r.dir.String(), kind.String(), r.dur)
		s.publish()
		return
	}

	items := r.page.Items
	switch r.dir {
	case Initial:
		s.loaded = true
		s.pages = nil
		if len(items) > 0 {
			s.pages = []loadedPage{{key: r.key, items: items}}
		}
		s.forward = lane{dir: Forward, key: r.page.NextKey}
		s.forward.end = len(items) == 0 || r.page.NextKey <= r.key
		s.backward = lane{dir: Backward, key: r.page.PrevKey}
		s.backward.end = !r.page.PrevKey.Valid() || r.page.PrevKey >= r.key
	case Forward:
		if len(items) > 0 {
			s.pages = append(s.pages, loadedPage{key: r.key, items: items})
		}
		s.forward.key = r.page.NextKey
		if len(items) == 0 || r.page.NextKey <= r.key {
			s.forward.end = true
		}
	case Backward:
		if len(items) > 0 {
			s.pages = append([]loadedPage{{key: r.key, items: items}}, s.pages...)
		}
		s.backward.key = r.page.PrevKey
		if len(items) == 0 || !r.page.PrevKey.Valid() || r.page.PrevKey >= r.key {
			s.backward.end = true
		}
	}

	ev.Level, ev.Kind, ev.Count = otel.LevelInfo, otel.KindPageComplete, len(items)
	s.log.Emit(ev)
	s.opts.Metrics.PageLoaded(r.dir.String(), len(items), r.dur)
	s.publish()
}

func (s *Session) status() Status {
	switch {
	case !s.demanded:
		return Status{Phase: Idle}
	case !s.loaded && s.initial.err != nil:
		return Status{Phase: Failed, Direction: Initial, Err: s.initial.err}
	case !s.loaded:
		return Status{Phase: LoadingInitial, Direction: Initial}
	case s.forward.err != nil:
		return Status{Phase: Failed, Direction: Forward, Err: s.forward.err}
	case s.backward.err != nil:
		return Status{Phase: Failed, Direction: Backward, Err: s.backward.err}
	case s.forward.inflight:
		return Status{Phase: LoadingMore, Direction: Forward}
	case s.backward.inflight:
		return Status{Phase: LoadingMore, Direction: Backward}
	default:
		return Status{Phase: Ready}
	}
}

func (s *Session) publish() {
	s.version++
	snap := &Snapshot{
		Query:       s.query,
		Version:     s.version,
		Generation:  s.gen,
		Items:       flatten(s.pages),
		Pages:       len(s.pages),
		Status:      s.status(),
		ForwardEnd:  s.loaded && s.forward.end,
		BackwardEnd: s.loaded && s.backward.end,
	}
	s.snap.Store(snap)
	s.opts.Metrics.SnapshotPublished()
	if s.opts.Publish != nil {
		s.opts.Publish(snap)
	}
}
