// Package model defines the values exchanged by the paging engine: articles,
// page keys, pages and query descriptors.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source identifies the publisher of an article.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Article is one retrievable item. Values are never mutated after a loader
// produces them; a changed upstream article replaces the old value wholesale.
type Article struct {
	Source      Source    `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
	Content     string    `json:"content"`
}

// Identity returns the stable key used to match articles across snapshots.
// The URL is preferred; articles without one are keyed by a hash of title and
// publish time to the second, the precision the archive keeps.
func (a Article) Identity() string {
	if a.URL != "" {
		return a.URL
	}
	return hashString(a.Title + "|" + a.PublishedAt.UTC().Truncate(time.Second).Format(time.RFC3339))
}

// Equal reports whether every field of a and b matches.
func (a Article) Equal(b Article) bool {
	return a.Source == b.Source &&
		a.Author == b.Author &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.URL == b.URL &&
		a.URLToImage == b.URLToImage &&
		a.PublishedAt.Equal(b.PublishedAt) &&
		a.Content == b.Content
}

// hashString creates a short hash of a string for use as an ID.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}
