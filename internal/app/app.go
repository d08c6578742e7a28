// Package app builds the long-lived crawl services from configuration and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/wikicrawler/internal/api"
	"github.com/JakeFAU/wikicrawler/internal/clock/system"
	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/wikicrawler/internal/fetcher/colly"
	"github.com/JakeFAU/wikicrawler/internal/id/uuid"
	"github.com/JakeFAU/wikicrawler/internal/index"
	"github.com/JakeFAU/wikicrawler/internal/parser"
	"github.com/JakeFAU/wikicrawler/internal/progress"
	"github.com/JakeFAU/wikicrawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/wikicrawler/internal/publisher/pubsub"
	"github.com/JakeFAU/wikicrawler/internal/storage/gcs"
	"github.com/JakeFAU/wikicrawler/internal/storage/local"
	"github.com/JakeFAU/wikicrawler/internal/storage/memory"
	"github.com/JakeFAU/wikicrawler/internal/storage/postgres"
	"github.com/JakeFAU/wikicrawler/internal/store"
)

// ErrShuttingDown is reported by Ready once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// Option tweaks how New builds external clients.
type Option func(*options)

type options struct {
	registerer    prometheus.Registerer
	transport     http.RoundTripper
	gcsOptions    []option.ClientOption
	pubsubOptions []option.ClientOption
	publisher     sinks.Publisher
}

// WithRegisterer registers the progress collectors on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTransport replaces the fetcher's HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithGCSClientOptions passes extra options to the Cloud Storage client.
func WithGCSClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOptions = append(o.gcsOptions, opts...) }
}

// WithPubSubClientOptions passes extra options to the Pub/Sub client.
func WithPubSubClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.pubsubOptions = append(o.pubsubOptions, opts...) }
}

// WithPublisher sends completed runs to p instead of a Pub/Sub topic. It only
// takes effect when progress.topic is set.
func WithPublisher(p sinks.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

type closer struct {
	name string
	fn   func() error
}

// App holds the crawl engine and everything it drives. It is built once at
// startup; Run or Start/Shutdown control its lifetime.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Engine  *crawler.Engine
	Index   *index.Index
	Storage crawler.Storage
	Runs    store.RunRepository

	downloads *dispatcher.Pool
	parse     *dispatcher.Pool
	hub       *progress.Hub
	closers   []closer

	stopping     atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires the services described by cfg. It fails fast when a backend
// cannot be reached; anything opened before the failure is released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx, o); err != nil {
		_ = a.releaseClients()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres_runs", cfg.DB.DSN != ""),
		zap.String("progress_topic", cfg.Progress.Topic),
		zap.Int("max_depth", cfg.Crawler.MaxDepth),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	blobs, err := a.newStorage(ctx, o)
	if err != nil {
		return err
	}
	a.Storage = blobs

	runs, err := a.newRunRepository(ctx)
	if err != nil {
		return err
	}
	a.Runs = runs

	progressSinks, err := a.newSinks(ctx, o)
	if err != nil {
		return err
	}

	a.downloads, err = dispatcher.New(dispatcher.Config{Name: "download", Workers: a.cfg.Crawler.DownloadPoolSize}, a.logger)
	if err != nil {
		return fmt.Errorf("init download pool: %w", err)
	}
	a.parse, err = dispatcher.New(dispatcher.Config{Name: "parse", Workers: a.cfg.Crawler.ParsePoolSize}, a.logger)
	if err != nil {
		return fmt.Errorf("init parse pool: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: a.cfg.Crawler.RespectRobots,
		Timeout:       a.cfg.Crawler.RequestTimeout(),
		Transport:     o.transport,
	}, a.logger.Named("fetcher"))
	a.Index = index.New(a.logger.Named("index"))

	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait(),
		Logger:         a.logger.Named("progress"),
	}, progressSinks...)

	a.Engine, err = crawler.NewEngine(crawler.EngineConfig{MaxDepth: a.cfg.Crawler.MaxDepth}, crawler.Collaborators{
		Downloads:  a.downloads,
		Processing: a.parse,
		Downloader: fetcher,
		Parser:     parser.New(),
		Storage:    blobs,
		Index:      a.Index,
		Progress:   a.hub,
		IDs:        uuid.New(),
		Clock:      system.New(),
	}, a.logger.Named("engine"))
	if err != nil {
		if closeErr := a.hub.Close(context.WithoutCancel(ctx)); closeErr != nil {
			a.logger.Warn("progress hub close failed", zap.Error(closeErr))
		}
		return fmt.Errorf("init engine: %w", err)
	}
	return nil
}

func (a *App) newStorage(ctx context.Context, o options) (crawler.Storage, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendLocal:
		blobs, err := local.New(local.Config{RootDir: a.cfg.Storage.RootDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("using local storage", zap.String("root", blobs.Root()))
		return blobs, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, o.gcsOptions...)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs client", fn: client.Close})
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		if err := blobs.CheckBucket(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using gcs storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory storage; page bodies are lost on exit")
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

func (a *App) newRunRepository(ctx context.Context) (store.RunRepository, error) {
	if a.cfg.DB.DSN == "" {
		return memory.NewRunStore(), nil
	}
	runs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres run store: %w", err)
	}
	a.closers = append(a.closers, closer{name: "postgres pool", fn: func() error {
		runs.Close()
		return nil
	}})
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

func (a *App) newSinks(ctx context.Context, o options) ([]progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, err
	}
	out := []progress.Sink{
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(a.Runs, a.logger.Named("runs")),
	}
	topic := a.cfg.Progress.Topic
	if topic == "" {
		return out, nil
	}
	if o.publisher != nil {
		return append(out, sinks.NewPublishSink(o.publisher, topic, a.logger.Named("publish"))), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID, o.pubsubOptions...)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, closer{name: "pubsub client", fn: client.Close})
	publisher, err := pubsubpublisher.New(client, topic)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	if err := publisher.CheckTopic(ctx); err != nil {
		publisher.Close() //nolint:errcheck // topic was never used
		return nil, err
	}
	return append(out, sinks.NewPublishSink(publisher, topic, a.logger.Named("publish"))), nil
}

// Server builds the HTTP API over the app's services. Crawls it submits run
// under baseCtx.
func (a *App) Server(baseCtx context.Context) *api.Server {
	return api.NewServer(a.Engine, a.Index, api.Options{
		Runs:           a.Runs,
		BaseContext:    baseCtx,
		Ready:          a.Ready,
		RequestTimeout: a.cfg.Server.RequestTimeout(),
		Logger:         a.logger.Named("api"),
	})
}

// Ready reports ErrShuttingDown once shutdown has begun.
func (a *App) Ready(context.Context) error {
	if a.stopping.Load() {
		return ErrShuttingDown
	}
	return nil
}

// Start launches the worker pools.
func (a *App) Start() {
	a.downloads.Start()
	a.parse.Start()
}

// Run starts the pools and blocks until ctx ends, then shuts down within the
// configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	a.Start()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout())
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown drains the download pool, then the parse pool, so every admitted
// page resolves and its events reach the hub. The hub is flushed next and the
// external clients are closed last. Repeated calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.stopping.Store(true)
		a.logger.Info("shutdown initiated")
		var errs []error
		if err := a.downloads.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.parse.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, a.releaseClients())
		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("shutdown complete")
	})
	return a.shutdownErr
}

func (a *App) releaseClients() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
