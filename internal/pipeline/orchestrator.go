// Package pipeline drives one ingestion run: load history, visit every source and
// category with politeness pauses, judge novelty, save, and notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/novelty"
)

// Run statuses used in logs and metrics.
const (
	StatusSuccess   = "success"
	StatusNoUpdates = "no_updates"
	StatusFailed    = "failed"
)

// Source is one configured upstream with its ordered categories.
type Source struct {
	Label      string
	Policy     novelty.Policy
	Categories []string
	Adapter    ingest.Adapter
}

// Config controls politeness and the run deadline.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// Timeout bounds the whole run; zero disables it.
	Timeout time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Backend  history.Backend
	Notifier ingest.Notifier
	Clock    ingest.Clock
	Pauser   ingest.Pauser
	IDs      ingest.IDGenerator
	Logger   *zap.Logger
	// Tracer defaults to the global provider.
	Tracer trace.TracerProvider
	// Jitter picks a delay in [min, max). Defaults to a uniform random draw.
	Jitter func(lo, hi time.Duration) time.Duration
}

// Summary describes a finished run.
type Summary struct {
	RunID    string       `json:"run_id"`
	Status   string       `json:"status"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Fetched  int          `json:"fetched"`
	Failed   int          `json:"failed"`
	Skipped  int          `json:"skipped"`
	Accepted int          `json:"accepted"`
	Saved    bool         `json:"saved"`
	Notified bool         `json:"notified"`
	Delta    notice.Delta `json:"delta"`
	Error    string       `json:"error,omitempty"`
}

// Orchestrator runs the ingestion pipeline sequentially.
type Orchestrator struct {
	sources []Source
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New validates the configuration and builds an Orchestrator.
func New(sources []Source, cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Backend == nil {
		return nil, errors.New("pipeline: history backend is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("pipeline: notifier is required")
	}
	if deps.Clock == nil || deps.Pauser == nil || deps.IDs == nil {
		return nil, errors.New("pipeline: clock, pauser and id generator are required")
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("pipeline: invalid politeness window [%s, %s)", cfg.MinDelay, cfg.MaxDelay)
	}
	for _, src := range sources {
		if src.Adapter == nil {
			return nil, fmt.Errorf("pipeline: source %q has no adapter", src.Label)
		}
	}
	if deps.Jitter == nil {
		deps.Jitter = uniformJitter
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := deps.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Orchestrator{
		sources: sources,
		cfg:     cfg,
		deps:    deps,
		logger:  logger.Named("pipeline"),
		tracer:  tp.Tracer("github.com/JakeFAU/noticewatch/internal/pipeline"),
	}, nil
}

// Run executes one pass. The returned Summary is populated even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	sum, err := o.run(ctx)
	span.SetAttributes(
		attribute.String("run_id", sum.RunID),
		attribute.String("status", sum.Status),
		attribute.Int("fetched", sum.Fetched),
		attribute.Int("accepted", sum.Accepted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return sum, err
}

func (o *Orchestrator) run(ctx context.Context) (Summary, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	sum := Summary{Started: o.deps.Clock.Now()}
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return o.finish(sum, fmt.Errorf("generate run id: %w", err))
	}
	sum.RunID = runID
	sum.Delta.RunID = runID
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Run started", zap.Int("sources", len(o.sources)))

	store, err := o.deps.Backend.Load(ctx)
	if err != nil {
		var loadErr *ingest.StoreLoadError
		if !errors.As(err, &loadErr) {
			err = &ingest.StoreLoadError{Err: err}
		}
		logger.Error("Failed to load history", zap.Error(err))
		return o.finish(sum, err)
	}
	engine := novelty.NewEngine(store)
	stamper := &stamper{clock: o.deps.Clock}

	for _, src := range o.sources {
		for _, category := range src.Categories {
			if sum.Fetched > 0 {
				o.pause(ctx)
			}
			if err := ctx.Err(); err != nil {
				logger.Warn("Run interrupted", zap.Error(err))
				return o.finish(sum, err)
			}
			sum.Fetched++
			o.ingest(ctx, logger, engine, stamper, src, category, &sum)
		}
	}

	if sum.Delta.Len() == 0 {
		logger.Info("No updates", zap.Int("history", store.Len()))
		sum.Status = StatusNoUpdates
		return o.finish(sum, nil)
	}

	if err := o.deps.Backend.Save(ctx, store); err != nil {
		var saveErr *ingest.StoreSaveError
		if !errors.As(err, &saveErr) {
			err = &ingest.StoreSaveError{Err: err}
		}
		logger.Error("Critical: failed to save history; notification suppressed",
			zap.Int("delta", sum.Delta.Len()), zap.Error(err))
		return o.finish(sum, err)
	}
	sum.Saved = true

	if err := o.deps.Notifier.Notify(ctx, sum.Delta); err != nil {
		logger.Error("Failed to notify", zap.Int("delta", sum.Delta.Len()), zap.Error(err))
		return o.finish(sum, fmt.Errorf("notify: %w", err))
	}
	sum.Notified = true
	sum.Status = StatusSuccess
	logger.Info("Run finished", zap.Int("accepted", sum.Accepted), zap.Int("failed", sum.Failed))
	return o.finish(sum, nil)
}

func (o *Orchestrator) ingest(
	ctx context.Context,
	logger *zap.Logger,
	engine *novelty.Engine,
	stamper *stamper,
	src Source,
	category string,
	sum *Summary,
) {
	fields := []zap.Field{zap.String("source", src.Label), zap.String("category", category)}
	ctx, span := o.tracer.Start(ctx, "pipeline.ingest", trace.WithAttributes(
		attribute.String("source", src.Label),
		attribute.String("category", category),
	))
	defer span.End()

	batch, err := src.Adapter.Ingest(ctx, category, src.Label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ingest.Kind(err))
		sum.Failed++
		kind := ingest.Kind(err)
		fields = append(fields, zap.String("kind", kind), zap.Error(err))
		if kind == ingest.KindNotYetAvailable {
			logger.Info("Source not yet published", fields...)
		} else {
			logger.Warn("Source ingest failed", fields...)
		}
		return
	}
	if len(batch) == 0 {
		logger.Info("No data for category", fields...)
		return
	}

	kept := batch[:0:0]
	skipped := 0
	for _, rec := range batch {
		if rec.Identity == "" {
			skipped++
			continue
		}
		stamper.stamp(&rec)
		kept = append(kept, rec)
	}
	if skipped > 0 {
		sum.Skipped += skipped
		metrics.ObserveSkipped(src.Label, skipped)
		logger.Warn("Dropped records without identity", append(fields, zap.Int("count", skipped))...)
	}

	res, err := engine.Apply(src.Policy, kept)
	if err != nil {
		sum.Failed++
		logger.Warn("Novelty check failed", append(fields, zap.Error(err))...)
		return
	}
	metrics.ObserveAccepted(src.Label, res.New, res.Changed)
	for _, rec := range res.Accepted {
		sum.Delta.Entries = append(sum.Delta.Entries, notice.NewDeltaEntry(rec))
	}
	sum.Accepted += len(res.Accepted)
	span.SetAttributes(attribute.Int("accepted", len(res.Accepted)))
	logger.Debug("Category processed", append(fields,
		zap.Int("records", len(kept)), zap.Int("new", res.New), zap.Int("changed", res.Changed))...)
}

func (o *Orchestrator) pause(ctx context.Context) {
	delay := o.deps.Jitter(o.cfg.MinDelay, o.cfg.MaxDelay)
	metrics.ObservePoliteness(delay)
	o.deps.Pauser.Pause(ctx, delay)
}

func (o *Orchestrator) finish(sum Summary, err error) (Summary, error) {
	sum.Finished = o.deps.Clock.Now()
	if err != nil {
		sum.Status = StatusFailed
		sum.Error = err.Error()
	}
	status := sum.Status
	if status == StatusNoUpdates {
		status = StatusSuccess
	}
	metrics.ObserveRun(status, sum.Finished.Sub(sum.Started), sum.Finished)
	return sum, err
}

// stamper assigns IngestedAt at second precision, never moving backwards within a run.
type stamper struct {
	clock ingest.Clock
	last  time.Time
}

func (s *stamper) stamp(rec *notice.Record) {
	now := s.clock.Now().Truncate(time.Second)
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	rec.IngestedAt = now
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = now
	}
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}
