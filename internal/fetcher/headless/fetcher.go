// Package headless retrieves client-rendered pages through a scripted browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/metrics"
)

// Config controls retries and readiness waits.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	ReadyTimeout   time.Duration
	// DefaultSelector is awaited when a target sets no ReadySelector.
	DefaultSelector string
}

// Fetcher retries 403s and navigation failures with doubling backoff.
type Fetcher struct {
	cfg      Config
	sessions SessionFactory
	pauser   ingest.Pauser
	logger   *zap.Logger
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeTerminal
)

type attemptResult struct {
	outcome outcome
	payload []byte
	status  int
	err     error
}

// New creates a browser fetcher.
func New(cfg Config, sessions SessionFactory, pauser ingest.Pauser, logger *zap.Logger) (*Fetcher, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.DefaultSelector == "" {
		cfg.DefaultSelector = "body"
	}
	if pauser == nil {
		pauser = ingest.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, sessions: sessions, pauser: pauser, logger: logger.Named("browser_fetcher")}, nil
}

// Fetch renders target in up to MaxAttempts fresh sessions. Exhausted and
// terminal failures are logged and reported as a nil payload with a nil error.
func (f *Fetcher) Fetch(ctx context.Context, target ingest.Target) ([]byte, error) {
	logger := f.logger.With(zap.String("url", target.URL))
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.Backoff(attempt - 1)
			logger.Info("Backing off before retry", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			metrics.ObserveBrowserRetry(target.URL)
			f.pauser.Pause(ctx, delay)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("browser fetch canceled: %w", err)
		}

		res := f.withSession(ctx, func(s Session) attemptResult {
			return f.attempt(s, target)
		})
		switch res.outcome {
		case outcomeSuccess:
			return res.payload, nil
		case outcomeTerminal:
			logger.Warn("Browser fetch failed",
				zap.Int("attempt", attempt+1), zap.Int("status", res.status), zap.Error(res.err))
			return nil, nil
		default:
			logger.Warn("Browser attempt failed; will retry",
				zap.Int("attempt", attempt+1), zap.Int("status", res.status), zap.Error(res.err))
		}
	}
	logger.Error("Browser fetch exhausted attempts", zap.Int("attempts", f.cfg.MaxAttempts))
	return nil, nil
}

// Backoff returns the wait before retry number n (0-based): InitialBackoff * 2^n.
func (f *Fetcher) Backoff(n int) time.Duration {
	return f.cfg.InitialBackoff << uint(n)
}

// withSession is the only place sessions are acquired. The session is released on
// every path, panics inside fn become retryable failures, and release errors
// are logged and swallowed.
func (f *Fetcher) withSession(ctx context.Context, fn func(Session) attemptResult) (res attemptResult) {
	session, err := f.sessions.NewSession(ctx)
	if err != nil {
		return attemptResult{outcome: outcomeRetry, err: fmt.Errorf("acquire session: %w", err)}
	}
	defer f.release(session)
	defer func() {
		if r := recover(); r != nil {
			res = attemptResult{outcome: outcomeRetry, err: fmt.Errorf("browser attempt panicked: %v", r)}
		}
	}()
	return fn(session)
}

func (f *Fetcher) release(session Session) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("Browser session release panicked", zap.Any("panic", r))
		}
	}()
	if err := session.Close(); err != nil {
		f.logger.Warn("Browser session release failed", zap.Error(err))
	}
}

func (f *Fetcher) attempt(s Session, target ingest.Target) attemptResult {
	status, err := s.Navigate(target.URL, target.Headers)
	if err != nil {
		return attemptResult{outcome: outcomeRetry, err: err}
	}
	switch {
	case status == http.StatusForbidden:
		return attemptResult{outcome: outcomeRetry, status: status, err: errors.New(http.StatusText(status))}
	case status != http.StatusOK:
		return attemptResult{outcome: outcomeTerminal, status: status, err: &ingest.FetchStatusError{
			URL: target.URL, Code: status, Reason: http.StatusText(status),
		}}
	}

	selector := target.ReadySelector
	if selector == "" {
		selector = f.cfg.DefaultSelector
	}
	if err := s.WaitReady(selector, f.cfg.ReadyTimeout); err != nil {
		return attemptResult{outcome: outcomeTerminal, status: status, err: err}
	}
	html, err := s.HTML()
	if err != nil {
		return attemptResult{outcome: outcomeRetry, status: status, err: err}
	}
	return attemptResult{outcome: outcomeSuccess, status: status, payload: []byte(html)}
}
