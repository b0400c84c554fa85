package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Session is one browser tab owned by a single attempt.
type Session interface {
	// Navigate loads url and returns the document's HTTP status.
	Navigate(url string, headers http.Header) (int, error)
	// WaitReady blocks until selector is visible or timeout elapses.
	WaitReady(selector string, timeout time.Duration) error
	// HTML returns the rendered document.
	HTML() (string, error)
	// Close releases the tab.
	Close() error
}

// SessionFactory opens sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// ChromedpConfig controls the shared browser process.
type ChromedpConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	ExecPath          string
}

// Chromedp owns a browser allocator and hands out one tab per session.
type Chromedp struct {
	cfg         ChromedpConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts an exec allocator. The browser launches lazily on the first session.
func NewChromedp(cfg ChromedpConfig) *Chromedp {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Chromedp{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close shuts the browser down.
func (c *Chromedp) Close() {
	c.allocCancel()
}

// NewSession opens a fresh tab. Cancelling ctx tears the tab down.
func (c *Chromedp) NewSession(ctx context.Context) (Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocator)
	stop := context.AfterFunc(ctx, tabCancel)

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	// Allocate the tab on the un-timed context so later timeouts do not close it.
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		tabCancel()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}
	return &chromedpSession{
		ctx:        tabCtx,
		cancel:     tabCancel,
		stop:       stop,
		meta:       meta,
		userAgent:  c.cfg.UserAgent,
		navTimeout: c.cfg.NavigationTimeout,
	}, nil
}

type chromedpSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	stop       func() bool
	meta       *responseMeta
	userAgent  string
	navTimeout time.Duration
}

func (s *chromedpSession) Navigate(url string, headers http.Header) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, s.networkSetupAction(headers), chromedp.Navigate(url)); err != nil {
		return 0, fmt.Errorf("navigate %s: %w", url, err)
	}
	status := s.meta.status()
	if status == 0 {
		status = http.StatusOK
	}
	return status, nil
}

func (s *chromedpSession) WaitReady(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) HTML() (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return html, nil
}

// Close closes the tab gracefully, then cancels its context.
func (s *chromedpSession) Close() error {
	defer s.cancel()
	s.stop()
	if err := chromedp.Cancel(s.ctx); err != nil {
		return fmt.Errorf("close browser tab: %w", err)
	}
	return nil
}

func (s *chromedpSession) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.userAgent != "" {
			if err := emulation.SetUserAgentOverride(s.userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// responseMeta captures the main document's status from network events.
type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
