package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/newsfeed/internal/cache"
	"github.com/abelbrown/newsfeed/internal/config"
	"github.com/abelbrown/newsfeed/internal/fetch"
	"github.com/abelbrown/newsfeed/internal/logging"
	"github.com/abelbrown/newsfeed/internal/metrics"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
	"github.com/abelbrown/newsfeed/internal/paging"
	"github.com/abelbrown/newsfeed/internal/router"
	"github.com/abelbrown/newsfeed/internal/store"
)

// ringSize is the number of recent events kept for the debug overlay.
const ringSize = 500

// engine is the wired paging stack shared by the commands.
type engine struct {
	cfg      *config.Config
	events   *otel.Logger
	eventLog *os.File
	ring     *otel.RingBuffer
	metrics  *metrics.Metrics
	server   *http.Server
	archive  *store.Store
	cache    *cache.Cache
	router   *router.Router
}

// loadConfig reads and validates the config and applies --archive.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagArchive != "" {
		cfg.Archive.Path = flagArchive
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newEngine opens logs, the loader and the cache.
func newEngine(cfg *config.Config) (_ *engine, err error) {
	e := &engine{cfg: cfg, ring: otel.NewRingBuffer(ringSize)}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if err := logging.Init(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Version: version}); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	if cfg.Log.Events {
		dir := cfg.Log.Dir
		if dir == "" {
			if dir, err = logging.DefaultDir(); err != nil {
				return nil, err
			}
		}
		if e.eventLog, err = logging.OpenEventLog(dir); err != nil {
			return nil, err
		}
		e.events = otel.NewLogger(e.eventLog)
	} else {
		e.events = otel.NewNullLogger()
	}
	e.events.SetRingBuffer(e.ring)
	e.events.Info(otel.KindStartup, "main", version)

	e.metrics = metrics.New()
	if cfg.Metrics.Addr != "" {
		e.serveMetrics(cfg.Metrics.Addr)
	}

	loader, err := e.loader()
	if err != nil {
		return nil, err
	}

	opts := paging.Options{
		InitialKey:       model.PageKey(cfg.Paging.InitialPage),
		PrefetchDistance: cfg.Paging.PrefetchDistance,
		Timeout:          cfg.Paging.LoadTimeout,
		Retry: paging.RetryPolicy{
			Attempts:   cfg.Paging.RetryAttempts,
			Backoff:    cfg.Paging.RetryBackoff,
			MaxBackoff: cfg.Paging.RetryMaxBackoff,
		},
		Logger:  e.events,
		Metrics: e.metrics,
	}
	e.cache = cache.New(cache.SessionFactory(loader, opts), cache.Options{
		GracePeriod: cfg.Cache.GracePeriod,
		Logger:      e.events,
		Metrics:     e.metrics,
	})
	e.router = router.New(e.cache, e.defaults(), e.events)
	return e, nil
}

// loader returns the archive loader when an archive is configured, and the
// NewsAPI loader otherwise.
func (e *engine) loader() (fetch.PageLoader, error) {
	if path := e.cfg.Archive.Path; path != "" {
		st, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		e.archive = st
		logging.Info("reading from archive", "path", path)
		return st.Loader(e.cfg.NewsAPI.PageSize), nil
	}

	if !e.cfg.HasAPIKey() {
		return nil, errors.New("no NewsAPI key: set NEWSAPI_KEY or pass --archive")
	}
	api := e.cfg.NewsAPI
	return fetch.NewNewsAPI(fetch.NewsAPIConfig{
		APIKey:            api.APIKey,
		BaseURL:           api.BaseURL,
		PageSize:          api.PageSize,
		Language:          api.Language,
		RequestsPerSecond: api.RequestsPerSecond,
		Timeout:           api.Timeout,
	}), nil
}

func (e *engine) defaults() router.Defaults {
	d := e.cfg.Defaults
	return router.Defaults{Term: d.Term, From: d.From, SortBy: d.SortBy}
}

func (e *engine) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logging.Info("serving metrics", "addr", addr)
}

// Close tears everything down in reverse order. It is safe on a partially
// built engine.
func (e *engine) Close() {
	if e.router != nil {
		e.router.Close()
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			logging.Warn("cache close", "err", err)
		}
	}
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = e.server.Shutdown(ctx)
		cancel()
	}
	if e.archive != nil {
		e.archive.Close()
	}
	if e.events != nil {
		e.events.Info(otel.KindShutdown, "main", "")
		e.events.Close()
	}
	if e.eventLog != nil {
		e.eventLog.Close()
	}
	logging.Close()
}

// archivePath returns the archive to import into: --archive, the configured
// path, or ~/.newsfeed/archive.db.
func archivePath(cfg *config.Config) string {
	if cfg.Archive.Path != "" {
		return cfg.Archive.Path
	}
	return filepath.Join(config.Dir(), "archive.db")
}
