package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned by Validate for descriptors that no upstream
// endpoint would accept.
var ErrInvalidQuery = errors.New("invalid query")

// Kind tags which upstream endpoint a Query targets.
type Kind int

const (
	KindEverything Kind = iota
	KindTopHeadlines
)

func (k Kind) String() string {
	switch k {
	case KindEverything:
		return "everything"
	case KindTopHeadlines:
		return "top-headlines"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sort orders accepted by the everything endpoint.
const (
	SortPublishedAt = "publishedAt"
	SortRelevancy   = "relevancy"
	SortPopularity  = "popularity"
)

// Query describes one logical result set. It is comparable: two queries are
// the same result set iff they are ==, which makes Query usable as a map key.
//
// Term, From and SortBy apply to KindEverything. Country, Sources and
// Category apply to KindTopHeadlines.
type Query struct {
	Kind Kind

	Term   string
	From   string
	SortBy string

	Country  string
	Sources  string
	Category string
}

// Everything builds a free-text search query. An empty sortBy defaults to
// publish time.
func Everything(term, from, sortBy string) Query {
	if sortBy == "" {
		sortBy = SortPublishedAt
	}
	return Query{Kind: KindEverything, Term: term, From: from, SortBy: sortBy}
}

// HeadlinesByCountry builds a top-headlines query for an ISO country code.
func HeadlinesByCountry(country string) Query {
	return Query{Kind: KindTopHeadlines, Country: strings.ToLower(country)}
}

// HeadlinesBySources builds a top-headlines query for comma-separated source ids.
func HeadlinesBySources(sources string) Query {
	return Query{Kind: KindTopHeadlines, Sources: sources}
}

// HeadlinesByCategory builds a top-headlines query for a category, optionally
// narrowed to a country.
func HeadlinesByCategory(country, category string) Query {
	return Query{Kind: KindTopHeadlines, Country: strings.ToLower(country), Category: category}
}

// Validate checks the descriptor against the rules of its endpoint.
func (q Query) Validate() error {
	switch q.Kind {
	case KindEverything:
		if strings.TrimSpace(q.Term) == "" {
			return fmt.Errorf("%w: everything requires a search term", ErrInvalidQuery)
		}
	case KindTopHeadlines:
		if q.Country == "" && q.Sources == "" && q.Category == "" {
			return fmt.Errorf("%w: top-headlines requires country, sources or category", ErrInvalidQuery)
		}
		// Upstream rejects mixing sources with country/category.
		if q.Sources != "" && (q.Country != "" || q.Category != "") {
			return fmt.Errorf("%w: sources cannot be combined with country or category", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidQuery, int(q.Kind))
	}
	return nil
}

// String renders a stable, human-readable key for logs and titles.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Kind.String())
	add := func(name, v string) {
		if v != "" {
			fmt.Fprintf(&b, " %s=%s", name, v)
		}
	}
	add("q", q.Term)
	add("from", q.From)
	add("sort", q.SortBy)
	add("country", q.Country)
	add("sources", q.Sources)
	add("category", q.Category)
	return b.String()
}
