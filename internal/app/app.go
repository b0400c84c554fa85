// Package app builds the long-lived services from configuration, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/adapter"
	"github.com/JakeFAU/noticewatch/internal/adapter/htmllist"
	"github.com/JakeFAU/noticewatch/internal/adapter/rss"
	"github.com/JakeFAU/noticewatch/internal/clock/system"
	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/noticewatch/internal/fetcher/colly"
	"github.com/JakeFAU/noticewatch/internal/fetcher/headless"
	"github.com/JakeFAU/noticewatch/internal/history"
	filehistory "github.com/JakeFAU/noticewatch/internal/history/file"
	gcshistory "github.com/JakeFAU/noticewatch/internal/history/gcs"
	pghistory "github.com/JakeFAU/noticewatch/internal/history/postgres"
	"github.com/JakeFAU/noticewatch/internal/id/uuid"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	memorynotify "github.com/JakeFAU/noticewatch/internal/notify/memory"
	pubsubnotify "github.com/JakeFAU/noticewatch/internal/notify/pubsub"
	"github.com/JakeFAU/noticewatch/internal/notify/zaplog"
	"github.com/JakeFAU/noticewatch/internal/novelty"
	"github.com/JakeFAU/noticewatch/internal/pipeline"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

// Options alter how services are built.
type Options struct {
	// DryRun keeps history read-only and logs deltas instead of publishing them.
	DryRun bool
}

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	backend  history.Backend
	notifier ingest.Notifier
	pipeline *pipeline.Orchestrator
	closers  []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates every service named by cfg. On error, whatever was already
// built is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("Initializing application services",
		zap.String("history", cfg.History.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.Int("sources", len(cfg.Sources)),
		zap.Bool("dry_run", opts.DryRun))

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracing", func() error { return tp.Shutdown(context.WithoutCancel(ctx)) })

	if a.backend, err = a.buildBackend(ctx); err != nil {
		return nil, err
	}
	if opts.DryRun {
		a.backend = history.NewReadOnly(a.backend, logger)
	}
	if a.notifier, err = a.buildNotifier(ctx, opts.DryRun); err != nil {
		return nil, err
	}

	var browser ingest.Fetcher
	if cfg.Browser.Enabled {
		if browser, err = a.buildBrowserFetcher(); err != nil {
			return nil, err
		}
	}
	router := fetcher.NewRouter(a.buildPlainFetcher(), browser)

	clock := system.New()
	sources, err := buildSources(cfg.Sources, router, clock, logger)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = pipeline.New(sources, pipeline.Config{
		MinDelay: cfg.Politeness.MinDelay,
		MaxDelay: cfg.Politeness.MaxDelay,
		Timeout:  cfg.Run.Timeout,
	}, pipeline.Deps{
		Backend:  a.backend,
		Notifier: a.notifier,
		Clock:    clock,
		Pauser:   ingest.TimerPauser{},
		IDs:      uuid.New(),
		Logger:   logger,
		Tracer:   tp,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	logger.Info("Application services initialized")
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Runner returns the pipeline.
func (a *App) Runner() pipeline.Runner {
	return a.pipeline
}

// Notifier returns the delta consumer in use.
func (a *App) Notifier() ingest.Notifier {
	return a.notifier
}

// Close releases clients in reverse construction order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("Error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on stdout/stderr on some platforms; nothing useful can be done about it.
	_ = a.logger.Sync()
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) buildBackend(ctx context.Context) (history.Backend, error) {
	hc := a.cfg.History
	switch hc.Backend {
	case config.BackendFile:
		b, err := filehistory.New(filehistory.Config{Path: hc.Path})
		if err != nil {
			return nil, fmt.Errorf("init file history: %w", err)
		}
		a.logger.Info("Using file history", zap.String("path", b.Path()))
		return b, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose("gcs", client.Close)
		b, err := gcshistory.New(client, gcshistory.Config{Bucket: hc.GCS.Bucket, Object: hc.GCS.Object})
		if err != nil {
			return nil, fmt.Errorf("init gcs history: %w", err)
		}
		a.logger.Info("Using GCS history", zap.String("location", b.Location()))
		return b, nil
	case config.BackendPostgres:
		b, err := pghistory.New(ctx, pghistory.Config{
			DSN:             hc.Postgres.DSN,
			Table:           hc.Postgres.Table,
			MaxConns:        hc.Postgres.MaxConns,
			MaxConnLifetime: hc.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres history: %w", err)
		}
		a.onClose("postgres", func() error { b.Close(); return nil })
		a.logger.Info("Using Postgres history", zap.String("table", hc.Postgres.Table))
		return b, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", hc.Backend)
	}
}

func (a *App) buildNotifier(ctx context.Context, dryRun bool) (ingest.Notifier, error) {
	nc := a.cfg.Notify
	if dryRun {
		return zaplog.New(a.logger), nil
	}
	switch nc.Backend {
	case config.NotifyLog:
		return zaplog.New(a.logger), nil
	case config.NotifyMemory:
		return memorynotify.New(), nil
	case config.NotifyPubSub:
		n, err := pubsubnotify.Dial(ctx, pubsubnotify.Config{ProjectID: nc.PubSub.ProjectID, Topic: nc.PubSub.Topic}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.onClose("pubsub", n.Close)
		a.logger.Info("Publishing deltas to Pub/Sub", zap.String("topic", nc.PubSub.Topic))
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify backend: %s", nc.Backend)
	}
}

func (a *App) buildPlainFetcher() ingest.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   a.cfg.Fetch.Timeout,
		Headers:   toHeader(a.cfg.Fetch.Headers),
	}, a.logger)
}

func (a *App) buildBrowserFetcher() (ingest.Fetcher, error) {
	bc := a.cfg.Browser
	sessions := headless.NewChromedp(headless.ChromedpConfig{
		UserAgent:         a.cfg.Fetch.UserAgent,
		NavigationTimeout: bc.NavigationTimeout,
		ExecPath:          bc.ExecPath,
	})
	a.onClose("browser", func() error { sessions.Close(); return nil })
	f, err := headless.New(headless.Config{
		MaxAttempts:    bc.MaxAttempts,
		InitialBackoff: bc.InitialBackoff,
		ReadyTimeout:   bc.ReadyTimeout,
	}, sessions, ingest.TimerPauser{}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init browser fetcher: %w", err)
	}
	return f, nil
}

func buildSources(cfgs []config.SourceConfig, f ingest.Fetcher, clock ingest.Clock, logger *zap.Logger) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		policy, err := novelty.ParsePolicy(sc.Policy)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Label, err)
		}
		endpoints := make(adapter.Endpoints, len(sc.Categories))
		categories := make([]string, 0, len(sc.Categories))
		for _, cat := range sc.Categories {
			endpoints[cat.Name] = ingest.Target{
				URL:                  cat.URL,
				Mode:                 sc.FetchMode(),
				Headers:              toHeader(sc.Headers),
				ReadySelector:        sc.ReadySelector,
				NotYetAvailableOn404: sc.NotYetAvailableOn404,
			}
			categories = append(categories, cat.Name)
		}

		var ad ingest.Adapter
		switch sc.Kind {
		case config.KindRSS:
			ad = rss.New(f, endpoints, clock, rss.Options{Limit: sc.Limit}, logger)
		case config.KindHTML:
			ad, err = htmllist.New(f, endpoints, clock, sc.Selectors, logger)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", sc.Label, err)
			}
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", sc.Label, sc.Kind)
		}

		sources = append(sources, pipeline.Source{
			Label:      sc.Label,
			Policy:     policy,
			Categories: categories,
			Adapter:    ad,
		})
	}
	return sources, nil
}

func toHeader(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
