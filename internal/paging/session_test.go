package paging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/newsfeed/internal/fetch"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
)

// mockLoader serves canned pages and records every call.
type mockLoader struct {
	mu    sync.Mutex
	pages map[model.PageKey]model.Page
	// errs are consumed one per call; a held key waits for close or ctx.
	errs  map[model.PageKey][]error
	hold  map[model.PageKey]chan struct{}
	calls []model.PageKey
}

func newMockLoader(pages map[model.PageKey]model.Page) *mockLoader {
	return &mockLoader{
		pages: pages,
		errs:  make(map[model.PageKey][]error),
		hold:  make(map[model.PageKey]chan struct{}),
	}
}

func (m *mockLoader) Fetch(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error) {
	m.mu.Lock()
	m.calls = append(m.calls, key)
	hold := m.hold[key]
	var err error
	if queued := m.errs[key]; len(queued) > 0 {
		err = queued[0]
		m.errs[key] = queued[1:]
	}
	page := m.pages[key]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return model.Page{}, ctx.Err()
		}
	}
	if err != nil {
		return model.Page{}, err
	}
	return page, nil
}

func (m *mockLoader) count(key model.PageKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.calls {
		if k == key {
			n++
		}
	}
	return n
}

func (m *mockLoader) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func article(id string) model.Article {
	return model.Article{URL: "https://example.com/" + id, Title: id}
}

// chain builds pages 1..n with per articles each, linked both ways.
func chain(n, per int) map[model.PageKey]model.Page {
	pages := make(map[model.PageKey]model.Page, n)
	for k := 1; k <= n; k++ {
		p := model.Page{PrevKey: model.PageKey(k - 1)}
		if k < n {
			p.NextKey = model.PageKey(k + 1)
		}
		for i := 0; i < per; i++ {
			p.Items = append(p.Items, article(fmt.Sprintf("p%d-%d", k, i)))
		}
		pages[model.PageKey(k)] = p
	}
	return pages
}

var testQuery = model.Everything("travel", "2025-04-01", "")

func startSession(t *testing.T, loader fetch.PageLoader, opts Options) *Session {
	t.Helper()
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = NoRetry
	}
	s := New(testQuery, loader, opts)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

// flush returns once every command queued before it has run.
func flush(s *Session) {
	ran := make(chan struct{})
	s.do(func() { close(ran) })
	<-ran
}

func waitFor(t *testing.T, s *Session, what string, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Snapshot(); cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot: %+v", what, s.Snapshot())
	return nil
}

func ready(snap *Snapshot) bool { return snap.Status.Phase == Ready }

func ids(items []model.Article) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.Title
	}
	return out
}

func TestSessionStartsIdle(t *testing.T) {
	loader := newMockLoader(chain(1, 1))
	s := startSession(t, loader, Options{})
	flush(s)

	if got := s.Snapshot().Status.Phase; got != Idle {
		t.Errorf("expected Idle before demand, got %s", got)
	}
	if loader.total() != 0 {
		t.Errorf("expected no fetches before demand, got %d", loader.total())
	}
}

func TestSessionInitialLoad(t *testing.T) {
	loader := newMockLoader(chain(3, 2))
	s := startSession(t, loader, Options{})
	s.Demand()
	s.Demand()

	snap := waitFor(t, s, "ready", ready)
	if len(snap.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(snap.Items))
	}
	if snap.ForwardEnd {
		t.Error("forward should not be terminal after page 1 of 3")
	}
	if !snap.BackwardEnd {
		t.Error("backward should be terminal at page 1")
	}
	if loader.count(1) != 1 {
		t.Errorf("expected one initial fetch, got %d", loader.count(1))
	}
}

func TestSessionIdempotentGrowth(t *testing.T) {
	loader := newMockLoader(chain(3, 2))
	s := startSession(t, loader, Options{})
	s.Demand()
	waitFor(t, s, "initial", ready)

	for want := 4; want <= 6; want += 2 {
		s.Append()
		waitFor(t, s, "growth", func(sn *Snapshot) bool { return ready(sn) && len(sn.Items) == want })
	}

	snap := s.Snapshot()
	wantIDs := []string{"p1-0", "p1-1", "p2-0", "p2-1", "p3-0", "p3-1"}
	if fmt.Sprint(ids(snap.Items)) != fmt.Sprint(wantIDs) {
		t.Errorf("items = %v, want %v", ids(snap.Items), wantIDs)
	}
	if !snap.ForwardEnd {
		t.Error("forward should be terminal after the last page")
	}
	if snap.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", snap.Pages)
	}

	// Terminal directions never fetch again.
	s.Append()
	s.Append()
	flush(s)
	if loader.total() != 3 {
		t.Errorf("expected 3 fetches, got %d", loader.total())
	}
}

func TestSessionSingleFlightPerDirection(t *testing.T) {
	loader := newMockLoader(chain(3, 2))
	release := make(chan struct{})
	loader.hold[2] = release

	s := startSession(t, loader, Options{})
	s.Demand()
	waitFor(t, s, "initial", ready)

	s.Append()
	s.Append()
	s.Access(1)
	flush(s)

	snap := s.Snapshot()
	if snap.Status.Phase != LoadingMore || snap.Status.Direction != Forward {
		t.Errorf("expected loading-more(forward), got %s", snap.Status)
	}

	close(release)
	waitFor(t, s, "page 2", func(sn *Snapshot) bool { return ready(sn) && len(sn.Items) == 4 })

	if n := loader.count(2); n != 1 {
		t.Errorf("expected exactly one fetch of page 2, got %d", n)
	}
}

func TestSessionEmptyFirstPage(t *testing.T) {
	loader := newMockLoader(map[model.PageKey]model.Page{
		1: {Items: nil, NextKey: model.NoPage},
	})
	s := startSession(t, loader, Options{})
	s.Demand()

	snap := waitFor(t, s, "ready", ready)
	if snap.Status.Err != nil {
		t.Errorf("expected no error, got %v", snap.Status.Err)
	}
	if !snap.ForwardEnd {
		t.Error("expected forward terminal after empty page")
	}
	if len(snap.Items) != 0 {
		t.Errorf("expected no items, got %d", len(snap.Items))
	}

	s.Append()
	flush(s)
	if loader.total() != 1 {
		t.Errorf("expected no further fetch, got %d calls", loader.total())
	}
}

func TestSessionTerminalOnEmptyPageWithKey(t *testing.T) {
	pages := chain(2, 2)
	pages[2] = model.Page{PrevKey: 1, NextKey: 3}
	loader := newMockLoader(pages)
	s := startSession(t, loader, Options{})
	s.Demand()
	waitFor(t, s, "initial", ready)

	s.Append()
	snap := waitFor(t, s, "terminal", func(sn *Snapshot) bool { return ready(sn) && sn.ForwardEnd })
	if len(snap.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(snap.Items))
	}

	s.Append()
	flush(s)
	if loader.count(3) != 0 {
		t.Error("fetched past an empty page")
	}
}

func TestSessionFailureKeepsPages(t *testing.T) {
	loader := newMockLoader(chain(3, 2))
	loader.errs[2] = []error{&fetch.LoadError{Kind: fetch.Upstream, Status: 400, Err: errors.New("bad request")}}

	s := startSession(t, loader, Options{Retry: DefaultRetryPolicy})
	s.Demand()
	before := waitFor(t, s, "initial", ready)

	s.Append()
	failed := waitFor(t, s, "failure", func(sn *Snapshot) bool { return sn.Status.Phase == Failed })

	if failed.Status.Direction != Forward {
		t.Errorf("expected forward failure, got %s", failed.Status)
	}
	if fetch.KindOf(failed.Status.Err) != fetch.Upstream {
		t.Errorf("expected upstream error, got %v", failed.Status.Err)
	}
	if fmt.Sprint(ids(failed.Items)) != fmt.Sprint(ids(before.Items)) {
		t.Errorf("failure changed items: %v -> %v", ids(before.Items), ids(failed.Items))
	}
	if loader.count(2) != 1 {
		t.Errorf("upstream errors must not be retried automatically, got %d calls", loader.count(2))
	}

	// A failed direction waits for an explicit retry.
	s.Append()
	flush(s)
	if loader.count(2) != 1 {
		t.Errorf("append while failed refetched, got %d calls", loader.count(2))
	}

	s.Retry()
	snap := waitFor(t, s, "recovery", func(sn *Snapshot) bool { return ready(sn) && len(sn.Items) == 4 })
	if snap.Status.Err != nil {
		t.Errorf("expected error cleared, got %v", snap.Status.Err)
	}
}

func TestSessionInitialFailureAndRetry(t *testing.T) {
	loader := newMockLoader(chain(1, 2))
	loader.errs[1] = []error{&fetch.LoadError{Kind: fetch.Upstream, Err: errors.New("rejected")}}

	s := startSession(t, loader, Options{})
	s.Demand()
	snap := waitFor(t, s, "failure", func(sn *Snapshot) bool { return sn.Status.Phase == Failed })
	if snap.Status.Direction != Initial {
		t.Errorf("expected initial failure, got %s", snap.Status)
	}
	if snap.ForwardEnd || snap.BackwardEnd {
		t.Error("no direction may be terminal before the initial load")
	}

	s.Retry()
	snap = waitFor(t, s, "ready", ready)
	if len(snap.Items) != 2 {
		t.Errorf("expected 2 items after retry, got %d", len(snap.Items))
	}
	if loader.count(1) != 2 {
		t.Errorf("expected 2 calls, got %d", loader.count(1))
	}
}

func TestSessionRetriesTransientErrors(t *testing.T) {
	transient := &fetch.LoadError{Kind: fetch.Transient, Err: errors.New("connection reset")}
	loader := newMockLoader(chain(1, 1))
	loader.errs[1] = []error{transient, transient}

	s := startSession(t, loader, Options{Retry: RetryPolicy{Attempts: 3, Backoff: time.Millisecond}})
	s.Demand()
	waitFor(t, s, "ready", ready)

	if loader.count(1) != 3 {
		t.Errorf("expected 3 attempts, got %d", loader.count(1))
	}
}

func TestSessionTransientRetriesExhausted(t *testing.T) {
	transient := &fetch.LoadError{Kind: fetch.Transient, Err: errors.New("connection reset")}
	loader := newMockLoader(chain(1, 1))
	loader.errs[1] = []error{transient, transient, transient}

	s := startSession(t, loader, Options{Retry: RetryPolicy{Attempts: 2, Backoff: time.Millisecond}})
	s.Demand()
	snap := waitFor(t, s, "failure", func(sn *Snapshot) bool { return sn.Status.Phase == Failed })

	if !fetch.IsTransient(snap.Status.Err) {
		t.Errorf("expected transient error, got %v", snap.Status.Err)
	}
	if loader.count(1) != 2 {
		t.Errorf("expected 2 attempts, got %d", loader.count(1))
	}

	s.Retry()
	waitFor(t, s, "ready", ready)
	if loader.count(1) != 4 {
		t.Errorf("expected 4 attempts in total, got %d", loader.count(1))
	}
}

func TestSessionTimeoutIsTransient(t *testing.T) {
	loader := newMockLoader(chain(1, 1))
	loader.hold[1] = make(chan struct{})

	s := startSession(t, loader, Options{Timeout: 20 * time.Millisecond})
	s.Demand()
	snap := waitFor(t, s, "timeout", func(sn *Snapshot) bool { return sn.Status.Phase == Failed })

	if !fetch.IsTransient(snap.Status.Err) {
		t.Errorf("expected transient, got %v", snap.Status.Err)
	}
	if !errors.Is(snap.Status.Err, fetch.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", snap.Status.Err)
	}
}

func TestSessionRefreshDiscardsStaleResults(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	logger := otel.NewLogger(io.Discard)
	logger.SetRingBuffer(ring)
	t.Cleanup(logger.Close)

	loader := newMockLoader(chain(3, 2))
	loader.hold[2] = make(chan struct{})

	s := startSession(t, loader, Options{Logger: logger})
	s.Demand()
	waitFor(t, s, "initial", ready)
	s.Append()
	flush(s)

	s.Refresh()
	snap := waitFor(t, s, "refreshed", func(sn *Snapshot) bool { return sn.Generation == 1 && ready(sn) })
	if len(snap.Items) != 2 {
		t.Errorf("expected fresh first page, got %d items", len(snap.Items))
	}
	if loader.count(1) != 2 {
		t.Errorf("expected page 1 refetched, got %d calls", loader.count(1))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ring.Filter("page.discard")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stale result was never discarded")
		}
		time.Sleep(2 * time.Millisecond)
	}

	flush(s)
	if got := s.Snapshot(); len(got.Items) != 2 || got.Pages != 1 {
		t.Errorf("stale result leaked into snapshot: %d items, %d pages", len(got.Items), got.Pages)
	}
	if len(ring.Filter("session.refresh")) != 1 {
		t.Error("expected one session.refresh event")
	}
}

func TestSessionRefreshResetsTerminal(t *testing.T) {
	loader := newMockLoader(chain(1, 2))
	s := startSession(t, loader, Options{})
	s.Demand()
	snap := waitFor(t, s, "ready", ready)
	if !snap.ForwardEnd {
		t.Fatal("expected terminal forward")
	}

	loader.mu.Lock()
	loader.pages = chain(2, 2)
	loader.mu.Unlock()

	s.Refresh()
	waitFor(t, s, "refreshed", func(sn *Snapshot) bool { return sn.Generation == 1 && ready(sn) })
	s.Append()
	waitFor(t, s, "grown", func(sn *Snapshot) bool { return len(sn.Items) == 4 })
}

func TestSessionBackwardPaging(t *testing.T) {
	loader := newMockLoader(chain(3, 2))
	s := startSession(t, loader, Options{InitialKey: 2})
	s.Demand()

	snap := waitFor(t, s, "ready", ready)
	if snap.BackwardEnd {
		t.Fatal("backward should be open when starting at page 2")
	}

	s.Prepend()
	snap = waitFor(t, s, "prepend", func(sn *Snapshot) bool { return ready(sn) && len(sn.Items) == 4 })
	if snap.Items[0].Title != "p1-0" {
		t.Errorf("expected page 1 first, got %v", ids(snap.Items))
	}
	if !snap.BackwardEnd {
		t.Error("backward should be terminal at page 1")
	}
}

func TestSessionAccessPrefetch(t *testing.T) {
	loader := newMockLoader(chain(3, 4))
	s := startSession(t, loader, Options{PrefetchDistance: 2})
	s.Demand()
	waitFor(t, s, "ready", ready)

	s.Access(1)
	flush(s)
	if loader.count(2) != 0 {
		t.Error("index 1 of 4 is outside the prefetch distance")
	}

	s.Access(2)
	waitFor(t, s, "prefetch", func(sn *Snapshot) bool { return len(sn.Items) == 8 })
}

func TestSessionDeduplicatesAcrossPages(t *testing.T) {
	pages := chain(2, 2)
	p2 := pages[2]
	p2.Items = append([]model.Article{article("p1-1")}, p2.Items...)
	pages[2] = p2

	loader := newMockLoader(pages)
	s := startSession(t, loader, Options{})
	s.Demand()
	waitFor(t, s, "ready", ready)
	s.Append()
	snap := waitFor(t, s, "page 2", func(sn *Snapshot) bool { return sn.Pages == 2 })

	want := []string{"p1-0", "p1-1", "p2-0", "p2-1"}
	if fmt.Sprint(ids(snap.Items)) != fmt.Sprint(want) {
		t.Errorf("items = %v, want %v", ids(snap.Items), want)
	}
}

func TestSessionPublishOrder(t *testing.T) {
	var mu sync.Mutex
	var versions []uint64
	publish := func(sn *Snapshot) {
		mu.Lock()
		versions = append(versions, sn.Version)
		mu.Unlock()
	}

	loader := newMockLoader(chain(3, 1))
	s := startSession(t, loader, Options{Publish: publish})
	s.Demand()
	waitFor(t, s, "ready", ready)
	s.Append()
	waitFor(t, s, "page 2", func(sn *Snapshot) bool { return ready(sn) && len(sn.Items) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if len(versions) < 4 {
		t.Fatalf("expected at least 4 snapshots, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			t.Fatalf("versions not sequential: %v", versions)
		}
	}
}

func TestSessionClose(t *testing.T) {
	loader := newMockLoader(chain(2, 1))
	loader.hold[1] = make(chan struct{})

	s := New(testQuery, loader, Options{Retry: NoRetry})
	s.Start(context.Background())
	s.Demand()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	// Commands after Close return immediately.
	s.Append()
	s.Refresh()
	s.Close()
}

func TestSessionCloseBeforeStart(t *testing.T) {
	s := New(testQuery, newMockLoader(nil), Options{})
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy
	want := map[int]time.Duration{
		2: 500 * time.Millisecond,
		3: time.Second,
		4: 2 * time.Second,
		5: 4 * time.Second,
		6: 4 * time.Second,
	}
	for n, d := range want {
		if got := p.delay(n); got != d {
			t.Errorf("delay(%d) = %v, want %v", n, got, d)
		}
	}
	if (RetryPolicy{}).attempts() != 1 {
		t.Error("zero attempts should mean one")
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Status{Phase: Idle}, "idle"},
		{Status{Phase: Ready}, "ready"},
		{Status{Phase: LoadingMore, Direction: Backward}, "loading-more(backward)"},
		{Status{Phase: Failed, Direction: Forward, Err: errors.New("boom")}, "failed(forward): boom"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
