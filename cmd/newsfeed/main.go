// Command newsfeed browses NewsAPI queries as incrementally paged lists.
//
// Usage:
//
//	newsfeed                     Interactive reader
//	newsfeed --archive news.db   Read from a local archive instead of NewsAPI
//	newsfeed pages [term...]     Print the update stream for one or more queries
//	newsfeed import dump.json    Load a NewsAPI response dump into the archive
//	newsfeed version             Print version information
package main

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	Execute()
}
