// Package fetch defines the page loading contract used by the paging engine
// and provides the upstream loaders that satisfy it.
//
// A PageLoader performs exactly one upstream fetch per call and has no other
// side effects, so callers may retry it freely. Failures are reported as
// *LoadError values classified as Transient, Upstream or Cancelled.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/abelbrown/newsfeed/internal/model"
)

// PageLoader fetches one page of a query.
type PageLoader interface {
	Fetch(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error)
}

// LoaderFunc adapts a function to the PageLoader interface.
type LoaderFunc func(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error)

// Fetch calls f.
func (f LoaderFunc) Fetch(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error) {
	return f(ctx, q, key)
}

// ErrorKind classifies a load failure.
type ErrorKind int

const (
	// Transient failures (network, timeout, throttling) may be retried.
	Transient ErrorKind = iota
	// Upstream failures (rejected request, malformed response) need caller action.
	Upstream
	// Cancelled loads belong to a torn-down session and are never shown.
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Upstream:
		return "upstream"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LoadError describes a failed page load.
type LoadError struct {
	Kind   ErrorKind
	Query  model.Query
	Key    model.PageKey
	Status int // HTTP status when known
	Err    error
}

func (e *LoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load %s page %s: %s (status %d): %v", e.Query, e.Key, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("load %s page %s: %s: %v", e.Query, e.Key, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// KindOf classifies err. A *LoadError anywhere in the chain wins; otherwise
// context cancellation is Cancelled, deadlines and network errors are
// Transient and everything else is Upstream.
func KindOf(err error) ErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	return Upstream
}

// IsTransient reports whether err may be retried automatically.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == Transient
}

// Wrap normalises err into a *LoadError for q and key. Nil stays nil and an
// existing *LoadError is returned unchanged.
func Wrap(q model.Query, key model.PageKey, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Kind: KindOf(err), Query: q, Key: key, Err: err}
}

// ErrTimeout is wrapped by loads that exceeded the WithTimeout deadline.
var ErrTimeout = errors.New("page load timed out")

// WithTimeout bounds every Fetch by d. A loader that ignores its context still
// cannot hold the caller past the deadline: the call returns a Transient
// error and the late result is dropped. d <= 0 returns l unchanged.
func WithTimeout(l PageLoader, d time.Duration) PageLoader {
	if d <= 0 {
		return l
	}
	return LoaderFunc(func(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			page model.Page
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			p, err := l.Fetch(fetchCtx, q, key)
			ch <- result{p, err}
		}()

		select {
		case r := <-ch:
			if r.err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				return model.Page{}, &LoadError{Kind: Transient, Query: q, Key: key, Err: fmt.Errorf("%w after %s: %v", ErrTimeout, d, r.err)}
			}
			return r.page, Wrap(q, key, r.err)
		case <-fetchCtx.Done():
			if ctx.Err() != nil {
				return model.Page{}, &LoadError{Kind: Cancelled, Query: q, Key: key, Err: ctx.Err()}
			}
			return model.Page{}, &LoadError{Kind: Transient, Query: q, Key: key, Err: fmt.Errorf("%w after %s", ErrTimeout, d)}
		}
	})
}
