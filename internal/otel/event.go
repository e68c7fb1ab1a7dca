// Package otel provides structured observability for newsfeed.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and a drain goroutine, so
// paging sessions never block on log I/O. An optional RingBuffer keeps the
// most recent events in memory for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Page loads
	KindPageLoad     EventKind = "page.load"
	KindPageComplete EventKind = "page.complete"
	KindPageRetry    EventKind = "page.retry"
	KindPageError    EventKind = "page.error"
	KindPageDiscard  EventKind = "page.discard"

	// Session lifecycle
	KindSessionStart   EventKind = "session.start"
	KindSessionRefresh EventKind = "session.refresh"
	KindSessionClose   EventKind = "session.close"

	// Shared cache
	KindCacheSubscribe   EventKind = "cache.subscribe"
	KindCacheUnsubscribe EventKind = "cache.unsubscribe"
	KindCacheEvict       EventKind = "cache.evict"

	// Query selection
	KindRouteSelect EventKind = "route.select"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional.
type Event struct {
	Time       time.Time      `json:"t"`
	Level      Level          `json:"level,omitempty"`
	Kind       EventKind      `json:"kind"`
	Comp       string         `json:"comp,omitempty"`   // "paging", "cache", "router", "main"
	RunID      string         `json:"run_id,omitempty"` // random hex, same for the whole process
	Query      string         `json:"query,omitempty"`
	Key        int            `json:"key,omitempty"`
	Direction  string         `json:"dir,omitempty"`
	Generation uint64         `json:"gen,omitempty"`
	Version    uint64         `json:"ver,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Count      int            `json:"count,omitempty"`
	Observers  int            `json:"observers,omitempty"`
	Dur        time.Duration  `json:"-"`
	DurMs      float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	ErrKind    string         `json:"err_kind,omitempty"`
	Err        string         `json:"err,omitempty"`
	Msg        string         `json:"msg,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// MarshalJSON converts Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
