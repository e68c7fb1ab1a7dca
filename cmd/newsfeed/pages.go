package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/abelbrown/newsfeed/internal/cache"
	"github.com/abelbrown/newsfeed/internal/diff"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/paging"
	"github.com/abelbrown/newsfeed/internal/router"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagPages   int
	flagCountry string
	flagSource  string
	flagItems   bool
)

var pagesCmd = &cobra.Command{
	Use:   "pages [term...]",
	Short: "Print the update stream for one or more queries",
	Long: "pages subscribes to each query, loads pages forward until --pages pages are loaded or the " +
		"query ends, and prints every update as it arrives. With no terms or flags the default feed is used.",
	RunE: runPages,
}

func init() {
	pagesCmd.Flags().IntVarP(&flagPages, "pages", "n", 2, "pages to load per query")
	pagesCmd.Flags().StringVar(&flagCountry, "country", "", "also page top headlines for this country")
	pagesCmd.Flags().StringVar(&flagSource, "source", "", "also page top headlines from these sources")
	pagesCmd.Flags().BoolVar(&flagItems, "items", false, "print inserted and updated titles")
}

func runPages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var sels []router.Selection
	for _, term := range args {
		sels = append(sels, router.Selection{Intent: router.IntentSearch, Term: term})
	}
	if flagCountry != "" {
		sels = append(sels, router.Selection{Intent: router.IntentCountry, Country: flagCountry})
	}
	if flagSource != "" {
		sels = append(sels, router.Selection{Intent: router.IntentSource, Source: flagSource})
	}
	if len(sels) == 0 {
		sels = append(sels, router.Selection{Intent: router.IntentDefault})
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	queries := make([]model.Query, len(sels))
	for i, sel := range sels {
		if queries[i], err = eng.defaults().Query(sel); err != nil {
			return fmt.Errorf("%s: %w", sel.Intent, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			o, err := eng.cache.Subscribe(q)
			if err != nil {
				return err
			}
			defer o.Close()
			return followPages(ctx, o, flagPages, out)
		})
	}
	return g.Wait()
}

// followPages prints updates from o and asks for the next page each time
// the session settles, until limit pages are loaded or the query ends.
func followPages(ctx context.Context, o *cache.Observer, limit int, out io.Writer) error {
	for {
		u, err := o.Next(ctx)
		if err != nil {
			return err
		}
		snap := u.Snapshot
		fmt.Fprintf(out, "%s v%d %s pages=%d items=%d ops=%d\n",
			snap.Query, snap.Version, snap.Status, snap.Pages, len(snap.Items), len(u.Ops))
		if flagItems {
			for _, op := range u.Ops {
				if op.Kind == diff.Insert || op.Kind == diff.Update {
					fmt.Fprintf(out, "  %s %s\n", op, op.Item.Title)
				}
			}
		}

		switch snap.Status.Phase {
		case paging.Failed:
			return fmt.Errorf("%s: %w", snap.Query, snap.Status.Err)
		case paging.Ready:
			if snap.Pages >= limit || snap.ForwardEnd {
				return nil
			}
			o.Append()
		}
	}
}

// lockedWriter serializes lines written by concurrent queries.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
