package paging

import (
	"fmt"

	"github.com/abelbrown/newsfeed/internal/model"
)

// Direction says which end of the loaded range a load extends.
type Direction int

const (
	Initial Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Initial:
		return "initial"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Phase is the coarse state of a session.
type Phase int

const (
	Idle Phase = iota
	LoadingInitial
	Ready
	LoadingMore
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading"
	case Ready:
		return "ready"
	case LoadingMore:
		return "loading-more"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is the session state carried with every snapshot. Direction is set
// for LoadingMore and Failed; Err only for Failed.
type Status struct {
	Phase     Phase
	Direction Direction
	Err       error
}

func (s Status) String() string {
	switch s.Phase {
	case LoadingMore:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Direction)
	case Failed:
		return fmt.Sprintf("%s(%s): %v", s.Phase, s.Direction, s.Err)
	default:
		return s.Phase.String()
	}
}

// LoadRequest asks for the page at Anchor in the given direction.
type LoadRequest struct {
	Direction Direction
	Anchor    model.PageKey
}

// Snapshot is an immutable view of everything a session has loaded.
// Callers must not modify Items.
type Snapshot struct {
	Query      model.Query
	Version    uint64 // increases with every snapshot of the session
	Generation uint64 // increases with every Refresh
	Items      []model.Article
	Pages      int
	Status     Status
	// ForwardEnd and BackwardEnd report terminal directions.
	ForwardEnd  bool
	BackwardEnd bool
}

// Loading reports whether any load is in flight.
func (s *Snapshot) Loading() bool {
	return s.Status.Phase == LoadingInitial || s.Status.Phase == LoadingMore
}

// loadedPage is one page in the ordered page list.
type loadedPage struct {
	key   model.PageKey
	items []model.Article
}

// lane tracks one load direction. key is the next page to request; end means
// the direction is terminal.
type lane struct {
	dir      Direction
	key      model.PageKey
	end      bool
	inflight bool
	cancel   func()
	err      error
}

func (l *lane) stop() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = false
}

// flatten concatenates pages in key order, keeping the first occurrence of
// each identity.
func flatten(pages []loadedPage) []model.Article {
	n := 0
	for _, p := range pages {
		n += len(p.items)
	}
	out := make([]model.Article, 0, n)
	seen := make(map[string]struct{}, n)
	for _, p := range pages {
		for _, a := range p.items {
			id := a.Identity()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
