// Package app builds the long-lived services behind both the crawl and serve
// commands from a validated Config.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/archive"
	"github.com/JakeFAU/talk-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/talk-catalog-crawler/internal/config"
	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/entity"
	collyfetcher "github.com/JakeFAU/talk-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/talk-catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/talk-catalog-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/talk-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/talk-catalog-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/talk-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/talk-catalog-crawler/internal/sequence"
	"github.com/JakeFAU/talk-catalog-crawler/internal/source"
	"github.com/JakeFAU/talk-catalog-crawler/internal/spider"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/talk-catalog-crawler/internal/storage/redis"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/sqlite"
)

// SourceLookup resolves a source name to its extractor.
type SourceLookup func(name string) (crawler.Source, error)

// DocumentStore persists talks and speakers and hosts the sequence counters
// unless a separate counter backend is configured.
type DocumentStore interface {
	crawler.TalkStore
	crawler.SpeakerStore
	crawler.SequenceCounter
}

// App holds the shared services. One allocator and one store back every
// crawl started through it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	store     DocumentStore
	runs      crawler.RunStore
	alloc     *sequence.Allocator
	talks     *entity.Collection[crawler.Talk]
	speakers  *entity.Collection[crawler.Speaker]
	fetcher   crawler.Fetcher
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	lookup    SourceLookup
	closers   []func()
}

// Option overrides a default service.
type Option func(*App)

// WithFetcher replaces the configured fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithSourceLookup replaces the source registry.
func WithSourceLookup(lookup SourceLookup) Option {
	return func(a *App) { a.lookup = lookup }
}

// WithBlobStore replaces the configured page archive.
func WithBlobStore(blobs crawler.BlobStore) Option {
	return func(a *App) { a.blobs = blobs }
}

// WithPublisher replaces the configured run notifier.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithStore replaces the document store and counter.
func WithStore(store DocumentStore) Option {
	return func(a *App) { a.store = store }
}

// New wires the services described by cfg. It fails fast when a backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		lookup: source.Lookup,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	counter, err := a.initCounter()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.alloc, err = sequence.New(counter, sequence.Config{
		BlockSize:    cfg.Sequence.BlockSize,
		CacheEnabled: cfg.Sequence.CacheEnabled,
	}, logger.Named("sequence"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build allocator: %w", err)
	}
	a.talks = entity.NewTalks(a.store, a.alloc)
	a.speakers = entity.NewSpeakers(a.store, a.alloc)

	if a.fetcher == nil {
		if err := a.initFetcher(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.initArchive(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.publisher == nil && cfg.PubSub.Enabled() {
		if err := a.initPublisher(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("sequence_backend", cfg.Sequence.Backend),
		zap.Int64("block_size", cfg.Sequence.BlockSize),
		zap.Bool("cache_enabled", cfg.Sequence.CacheEnabled),
		zap.Bool("headless", cfg.HTTP.Headless),
		zap.Bool("auto_headless", cfg.HTTP.AutoHeadless),
		zap.Float64("requests_per_second", cfg.HTTP.RequestsPerSecond),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("notifications", a.publisher != nil),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.store != nil {
		a.runs = memory.NewRunStore(a.clock)
		return nil
	}
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      a.cfg.Store.DSN,
			MaxConns: a.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store, err := postgres.NewStore(pool)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		runs, err := postgres.NewRunStore(pool, a.clock)
		if err != nil {
			return fmt.Errorf("init postgres run store: %w", err)
		}
		a.store = store
		a.runs = runs
	case config.DriverSQLite:
		db, err := sqlite.Open(a.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := db.Close(); err != nil {
				a.logger.Warn("close sqlite", zap.Error(err))
			}
		})
		store, err := sqlite.NewStore(db)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		runs, err := sqlite.NewRunStore(db, a.clock)
		if err != nil {
			return fmt.Errorf("init sqlite run store: %w", err)
		}
		a.store = store
		a.runs = runs
	case config.DriverMemory:
		a.store = memory.NewStore()
		a.runs = memory.NewRunStore(a.clock)
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) initCounter() (crawler.SequenceCounter, error) {
	switch a.cfg.Sequence.Backend {
	case config.BackendRedis:
		client := redisstore.NewClient(a.cfg.Redis.Addr)
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close redis client", zap.Error(err))
			}
		})
		counter, err := redisstore.NewCounter(client, a.cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("init redis counter: %w", err)
		}
		return counter, nil
	case config.BackendStore, "":
		return a.store, nil
	default:
		return nil, fmt.Errorf("unknown sequence backend %q", a.cfg.Sequence.Backend)
	}
}

func (a *App) initFetcher() error {
	var base crawler.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	})
	if a.cfg.HTTP.Headless || a.cfg.HTTP.AutoHeadless {
		browser, err := headless.New(headless.Config{
			UserAgent: a.cfg.HTTP.UserAgent,
			Timeout:   a.cfg.FetchTimeout(),
			MaxTabs:   a.cfg.Server.Workers,
		})
		if err != nil {
			return fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, browser.Close)
		if a.cfg.HTTP.Headless {
			base = browser
		} else {
			base = promote.NewFetcher(base, browser, promote.NewHeuristic(0), a.logger.Named("promote"))
		}
	}
	if a.cfg.HTTP.RequestsPerSecond > 0 {
		base = ratelimit.NewFetcher(base, ratelimit.New(ratelimit.Config{
			RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
			Burst:             a.cfg.HTTP.Burst,
		}))
	}
	a.fetcher = base
	return nil
}

// initArchive wraps the fetcher so every fetched page is copied to the
// configured blob store.
func (a *App) initArchive(ctx context.Context) error {
	if a.blobs == nil {
		switch a.cfg.Archive.Backend {
		case config.ArchiveNone, "":
			return nil
		case config.ArchiveMemory:
			a.blobs = memory.NewBlobStore()
		case config.ArchiveLocal:
			blobs, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
			if err != nil {
				return fmt.Errorf("init local archive: %w", err)
			}
			a.blobs = blobs
		case config.ArchiveGCS:
			client, err := storage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("init gcs client: %w", err)
			}
			a.closers = append(a.closers, func() {
				if err := client.Close(); err != nil {
					a.logger.Warn("close gcs client", zap.Error(err))
				}
			})
			blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
			if err != nil {
				return fmt.Errorf("init gcs archive: %w", err)
			}
			a.blobs = blobs
		default:
			return fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
		}
	}
	a.fetcher = archive.NewFetcher(a.fetcher, a.blobs, sha256.New(), a.logger.Named("archive"))
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	p := gcppublisher.New(client)
	a.closers = append(a.closers, p.Stop)
	a.publisher = p
	a.logger.Info("pubsub notifications enabled",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

// Crawl runs one crawl controller for request to completion.
func (a *App) Crawl(ctx context.Context, request crawler.RunRequest) (crawler.Summary, error) {
	src, err := a.lookup(request.Source)
	if err != nil {
		return crawler.Summary{Source: request.Source, Recrawl: request.Recrawl, Reason: crawler.ReasonFailed}, err
	}
	sp := spider.New(src, a.fetcher, a.talks, a.speakers, spider.Config{
		Recrawl:   request.Recrawl,
		StartPage: request.StartPage,
	}, a.logger.Named("spider").With(zap.String("source", src.Name())))
	return sp.Run(ctx)
}

// Notifier returns the run notifier and its topic. The publisher is nil
// when notifications are disabled.
func (a *App) Notifier() (crawler.Publisher, string) {
	return a.publisher, a.cfg.PubSub.Topic
}

// Runs returns the run store used by the API and workers.
func (a *App) Runs() crawler.RunStore {
	return a.runs
}

// Clock returns the wall clock shared by the services.
func (a *App) Clock() crawler.Clock {
	return a.clock
}

// Allocator returns the shared identity allocator.
func (a *App) Allocator() *sequence.Allocator {
	return a.alloc
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
