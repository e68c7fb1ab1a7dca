// Package router maps named feed intents to queries and keeps one observer
// attached to the currently selected query.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/abelbrown/newsfeed/internal/cache"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
)

// ErrUnknownIntent is returned for intent names ParseIntent does not know.
var ErrUnknownIntent = errors.New("unknown intent")

// Intent is one of the fixed ways to pick a feed.
type Intent int

const (
	IntentDefault Intent = iota
	IntentCountry
	IntentSource
	IntentSearch
)

func (i Intent) String() string {
	switch i {
	case IntentDefault:
		return "default"
	case IntentCountry:
		return "country"
	case IntentSource:
		return "source"
	case IntentSearch:
		return "search"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// ParseIntent accepts an intent name, case-insensitively.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return IntentDefault, nil
	case "country", "headlines":
		return IntentCountry, nil
	case "source", "sources":
		return IntentSource, nil
	case "search", "everything":
		return IntentSearch, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIntent, s)
	}
}

// Selection is an intent plus its free-text parameter. Only the field that
// matches Intent is used.
type Selection struct {
	Intent  Intent
	Term    string
	Country string
	Source  string
}

// Defaults holds the parameters of the default feed.
type Defaults struct {
	Term   string
	From   string
	SortBy string
}

// DefaultFeed is the feed shown when nothing else is selected.
var DefaultFeed = Defaults{Term: "travel", From: "2025-04-01", SortBy: model.SortPublishedAt}

// Presets are the quick selections offered alongside the default feed.
var Presets = []Selection{
	{Intent: IntentDefault},
	{Intent: IntentCountry, Country: "us"},
	{Intent: IntentSource, Source: "bbc-news"},
	{Intent: IntentSearch, Term: "Apple"},
}

// Query builds the descriptor for sel. Search uses the default date range
// and sort order.
func (d Defaults) Query(sel Selection) (model.Query, error) {
	var q model.Query
	switch sel.Intent {
	case IntentDefault:
		q = model.Everything(d.Term, d.From, d.SortBy)
	case IntentCountry:
		q = model.HeadlinesByCountry(strings.TrimSpace(sel.Country))
	case IntentSource:
		q = model.HeadlinesBySources(strings.TrimSpace(sel.Source))
	case IntentSearch:
		q = model.Everything(strings.TrimSpace(sel.Term), d.From, d.SortBy)
	default:
		return model.Query{}, fmt.Errorf("%w: %s", ErrUnknownIntent, sel.Intent)
	}
	if err := q.Validate(); err != nil {
		return model.Query{}, err
	}
	return q, nil
}

// Router owns the observer for the selected query.
type Router struct {
	cache    *cache.Cache
	defaults Defaults
	log      *otel.Logger

	mu      sync.Mutex
	current *cache.Observer
}

// New creates a router over c. The logger may be nil.
func New(c *cache.Cache, defaults Defaults, logger *otel.Logger) *Router {
	return &Router{cache: c, defaults: defaults, log: otel.OrNull(logger)}
}

// Select attaches to the query for sel. Selecting the current query returns
// the current observer; otherwise a new observer is subscribed and the old
// one detached, which leaves its session warm in the cache.
func (r *Router) Select(sel Selection) (*cache.Observer, error) {
	q, err := r.defaults.Query(sel)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.Query() == q {
		return r.current, nil
	}

	o, err := r.cache.Subscribe(q)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q, err)
	}
	prev := r.current
	r.current = o
	if prev != nil {
		prev.Close()
	}

	r.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRouteSelect, Comp: "router",
		Query: q.String(), Msg: sel.Intent.String()})
	return o, nil
}

// Current returns the selected observer, or nil before the first Select.
func (r *Router) Current() *cache.Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Close detaches the current observer.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
}
