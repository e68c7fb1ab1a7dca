package model

import "strconv"

// PageKey is a 1-based page position. NoPage means there is no further page
// in that direction.
type PageKey int

// NoPage is the terminal key.
const NoPage PageKey = 0

// FirstPage is the default starting key for a query.
const FirstPage PageKey = 1

// Valid reports whether k addresses a page.
func (k PageKey) Valid() bool { return k > 0 }

func (k PageKey) String() string {
	if !k.Valid() {
		return "none"
	}
	return strconv.Itoa(int(k))
}

// Page is one upstream batch of articles plus its continuation keys.
type Page struct {
	Items   []Article
	PrevKey PageKey
	NextKey PageKey
}
