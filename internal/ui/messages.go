// Package ui provides the Bubble Tea TUI for newsfeed.
package ui

import "github.com/abelbrown/newsfeed/internal/cache"

// FeedSelected is sent when a query selection completes.
type FeedSelected struct {
	Feed Feed
	Err  error
}

// FeedUpdated carries one update from the active feed.
type FeedUpdated struct {
	Feed   Feed
	Update cache.Update
}

// FeedEnded is sent when a feed stops delivering, normally because it was
// detached.
type FeedEnded struct {
	Feed Feed
	Err  error
}
