// Package app assembles the meetingd components from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"meetingd/internal/cache"
	"meetingd/internal/capture"
	"meetingd/internal/config"
	"meetingd/internal/fetch"
	"meetingd/internal/history"
	"meetingd/internal/llm"
	"meetingd/internal/logging"
	"meetingd/internal/metrics"
	"meetingd/internal/pipe"
	"meetingd/internal/store"
)

// MemoryStorage selects the in-process store instead of SQLite.
const MemoryStorage = ":memory:"

// App holds the wired components. Fields are safe to use concurrently.
type App struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	Metrics  *metrics.Set
	Store    store.KV

	Capture    *capture.Client
	Repository *history.Repository
	Syncer     *history.Syncer
	Enricher   *history.Enricher
	LLM        *llm.Client

	Cache    *cache.Cache
	Resolver *pipe.Resolver
	Catalog  *pipe.Catalog

	closers []io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	store      store.KV
	httpClient *http.Client
}

// WithStore uses kv instead of opening cfg.Storage.Path.
func WithStore(kv store.KV) Option {
	return func(o *options) { o.store = kv }
}

// WithHTTPClient routes every outbound request through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New builds an App. The caller owns logger; Close releases everything else.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.Clone()

	a := &App{
		Logger:   logger,
		Registry: metrics.NewRegistry("meetingd"),
	}
	a.Metrics = metrics.NewSet(a.Registry)

	switch {
	case o.store != nil:
		a.Store = o.store
	case cfg.Storage.Path == MemoryStorage:
		a.Store = store.NewMemory()
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		db, err := store.Open(cfg.Storage.Path, store.WithMaxValueSize(cfg.Storage.MaxValueBytes))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.Store = db
		a.closers = append(a.closers, db)
	}

	client := func(fc fetch.Config) *fetch.Client {
		c := fetch.New(fc)
		if o.httpClient != nil {
			c = c.WithHTTPClient(o.httpClient)
		}
		return c
	}

	// Capture service: local, unauthenticated.
	a.Capture = capture.New(cfg.Capture.URL,
		client(fetch.Config{UserAgent: cfg.Remote.UserAgent}),
		logger.WithComponent("capture"))

	a.Repository = history.NewRepository(a.Store, cfg.Sync.RetainOnStorageFailure)
	a.Syncer = history.NewSyncer(a.Repository, a.Capture, cfg.SyncOptions(),
		history.WithLogger(logger.WithComponent("history")),
		history.WithMetrics(a.Metrics))

	a.LLM = llm.New(client(fetch.Config{
		Timeout:   cfg.LLM.Timeout.Duration,
		UserAgent: cfg.Remote.UserAgent,
		Token:     cfg.LLM.APIKey,
	}), cfg.LLM.BaseURL, cfg.LLM.Model)
	a.Enricher = history.NewEnricher(a.Repository, a.LLM, history.Prompts{
		Summary:      cfg.LLM.SummaryPrompt,
		Participants: cfg.LLM.ParticipantsPrompt,
	}, logger.WithComponent("llm"), a.Metrics)

	a.Cache = cache.New(a.Store,
		cache.WithLogger(logger.WithComponent("cache")),
		cache.WithMetrics(a.Metrics),
		cache.WithCompressThreshold(cfg.Cache.CompressThreshold))

	github := client(fetch.Config{
		Timeout:   cfg.Remote.Timeout.Duration,
		UserAgent: cfg.Remote.UserAgent,
		Token:     cfg.Remote.Token,
		Header:    http.Header{"Accept": []string{"application/vnd.github+json"}},
	})
	resolverOpts := []pipe.ResolverOption{
		pipe.WithConcurrency(cfg.Pipes.Concurrency),
		pipe.WithResolverLogger(logger.WithComponent("pipe")),
		pipe.WithResolverMetrics(a.Metrics),
	}
	if len(cfg.Pipes.Extensions) > 0 {
		resolverOpts = append(resolverOpts, pipe.WithExtensions(cfg.Pipes.Extensions...))
	}
	a.Resolver = pipe.NewResolver(
		pipe.NewClient(github, a.Cache,
			pipe.WithAPIURL(cfg.Remote.APIURL),
			pipe.WithRawURL(cfg.Remote.RawURL),
			pipe.WithTTL(cfg.Cache.TTL.Duration)),
		resolverOpts...)
	a.Catalog = pipe.NewCatalog(a.Store, a.Resolver, cfg.Pipes.URLs)

	return a, nil
}

// Apply pushes the reloadable parts of cfg into running components.
// Storage, endpoints and credentials take effect on restart only.
func (a *App) Apply(cfg *config.Config) {
	a.Syncer.SetOptions(cfg.SyncOptions())
}

// SessionCount reports the number of persisted sessions and updates the
// persisted-sessions gauge.
func (a *App) SessionCount(ctx context.Context) (int, error) {
	sessions, err := a.Repository.Load(ctx)
	if err != nil {
		return 0, err
	}
	a.Metrics.SessionsPersisted.Set(int64(len(sessions)))
	return len(sessions), nil
}

// Close releases the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
