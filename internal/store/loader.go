package store

import (
	"context"
	"fmt"

	"github.com/abelbrown/newsfeed/internal/fetch"
	"github.com/abelbrown/newsfeed/internal/model"
)

// DefaultPageSize matches the upstream API's page size.
const DefaultPageSize = 20

// Loader serves archived articles as pages.
type Loader struct {
	store    *Store
	pageSize int
}

var _ fetch.PageLoader = (*Loader)(nil)

// Loader returns a PageLoader over the archive. pageSize <= 0 means
// DefaultPageSize.
func (s *Store) Loader(pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{store: s, pageSize: pageSize}
}

// Fetch returns page key of q. One extra row is read to decide whether a
// next page exists.
func (l *Loader) Fetch(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error) {
	if !key.Valid() {
		return model.Page{}, &fetch.LoadError{Kind: fetch.Upstream, Query: q, Key: key, Err: fmt.Errorf("invalid page key %d", int(key))}
	}
	if err := q.Validate(); err != nil {
		return model.Page{}, &fetch.LoadError{Kind: fetch.Upstream, Query: q, Key: key, Err: err}
	}

	offset := (int(key) - 1) * l.pageSize
	items, err := l.store.QueryArticles(ctx, q, l.pageSize+1, offset)
	if err != nil {
		if ctx.Err() != nil {
			return model.Page{}, fetch.Wrap(q, key, ctx.Err())
		}
		return model.Page{}, &fetch.LoadError{Kind: fetch.Upstream, Query: q, Key: key, Err: err}
	}

	page := model.Page{PrevKey: key - 1}
	if len(items) > l.pageSize {
		items = items[:l.pageSize]
		page.NextKey = key + 1
	}
	page.Items = items
	return page, nil
}
