// Package app builds and owns the long-lived services the commands share:
// the logger, output mirrors, the listing store, the outcome publisher and
// the metrics registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/batch"
	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/progress"
	"github.com/JakeFAU/listing-crawler/internal/progress/sinks"
	"github.com/JakeFAU/listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/listing-crawler/internal/storage/gcs"
	"github.com/JakeFAU/listing-crawler/internal/storage/local"
	"github.com/JakeFAU/listing-crawler/internal/storage/memory"
	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
)

// App holds the services built from one Config.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     system.Clock
	ids       crawler.IDGenerator
	mirror    crawler.BlobStore
	listings  crawler.ListingStore
	publisher batch.Publisher
	registry  *prometheus.Registry
	closers   []func() error
}

// New initializes every service cfg enables. It fails fast when one cannot
// be built and releases whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock, err := system.Load(cfg.Crawler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("crawler.timezone: %w", err)
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		ids:      uuid.New(),
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.openMirror(ctx); err != nil {
		return nil, err
	}
	if cfg.DB.Enabled {
		store, err := postgres.NewListingStore(ctx, cfg.DB.Config)
		if err != nil {
			return nil, fmt.Errorf("init listing store: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		a.listings = store
		logger.Info("Listing store enabled", zap.String("table", cfg.DB.Table))
	}
	if cfg.PubSub.Enabled {
		pub, err := pubsub.Open(ctx, cfg.PubSub.Config)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
		logger.Info("Outcome notifications enabled", zap.String("topic", cfg.PubSub.Topic))
	}
	return a, nil
}

func (a *App) openMirror(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageLocal:
		store, err := local.New(a.cfg.Storage.Local)
		if err != nil {
			return fmt.Errorf("init local mirror: %w", err)
		}
		a.mirror = store
	case config.StorageGCS:
		store, err := gcs.Open(ctx, a.cfg.Storage.GCS)
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.mirror = store
	case config.StorageMemory:
		a.mirror = memory.NewBlobStore()
	default:
		return nil
	}
	a.logger.Info("Output mirror enabled", zap.String("backend", a.cfg.Storage.Backend))
	return nil
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Publisher returns the outcome publisher, or nil when notifications are off.
func (a *App) Publisher() batch.Publisher { return a.publisher }

// NewRunID returns a fresh run identifier.
func (a *App) NewRunID() (string, error) { return a.ids.NewID() }

// NewSink builds the result sink for one crawl: a CSV file in outputDir,
// mirrored and upserted when those services are enabled.
func (a *App) NewSink(outputDir string) (crawler.ResultSink, error) {
	csvSink, err := crawler.NewCSVSink(outputDir, a.clock, a.ids, a.mirror, a.cfg.Storage.Prefix, a.logger)
	if err != nil {
		return nil, err
	}
	if a.listings == nil {
		return csvSink, nil
	}
	return crawler.MultiSink{csvSink, crawler.NewStoreSink(a.listings, a.logger)}, nil
}

// NewProvider opens the configured page provider. release frees it.
func (a *App) NewProvider(ctx context.Context) (crawler.PageProvider, func(), error) {
	switch a.cfg.Crawler.Provider {
	case config.ProviderStatic:
		return collyfetcher.New(a.cfg.StaticConfig(), a.logger), func() {}, nil
	default:
		p, err := headless.New(ctx, a.cfg.Browser, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("start browser: %w", err)
		}
		return p, p.Close, nil
	}
}

// NewCrawler builds a crawler writing into outputDir and reporting page
// status lines to status. release frees the page provider.
func (a *App) NewCrawler(ctx context.Context, outputDir string, status io.Writer, events progress.Emitter) (*crawler.Crawler, func(), error) {
	sink, err := a.NewSink(outputDir)
	if err != nil {
		return nil, nil, err
	}
	provider, release, err := a.NewProvider(ctx)
	if err != nil {
		return nil, nil, err
	}
	pacer := crawler.NewRandomPacer(a.cfg.Pacing, nil, a.logger)
	c := crawler.NewCrawler(a.cfg.CrawlConfig(), provider, pacer, sink, status, events, a.clock, a.logger)
	return c, release, nil
}

// Sessions returns a factory that builds a fresh crawler per attempt, for
// in-process isolation.
func (a *App) Sessions(outputDir string, status io.Writer, events progress.Emitter) batch.SessionFactory {
	return func(ctx context.Context) (batch.CrawlFunc, func(), error) {
		c, release, err := a.NewCrawler(ctx, outputDir, status, events)
		if err != nil {
			return nil, nil, err
		}
		return c.Crawl, release, nil
	}
}

// NewHub starts a progress hub feeding the log and Prometheus sinks. It may
// be called once per App since the sink registers its collectors.
func (a *App) NewHub() (*progress.Hub, error) {
	metrics, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics sink: %w", err)
	}
	cfg := a.cfg.Progress
	cfg.Logger = a.logger
	return progress.NewHub(cfg, sinks.NewLogSink(a.logger), metrics), nil
}

// Close releases every service in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing services", zap.Error(err))
	}
}
