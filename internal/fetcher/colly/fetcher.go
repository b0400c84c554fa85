// Package collyfetcher implements the plain-mode fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/ingest"
)

// DefaultUserAgent mimics a current mobile Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are sent on every request before target-specific headers.
	Headers http.Header
}

// Fetcher issues exactly one GET per call and never retries.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type response struct {
	status int
	body   []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger.Named("plain_fetcher"),
	}
}

// Fetch performs a single GET. Non-2xx statuses become FetchStatusError, or
// ErrNotYetAvailable for a 404 on a target flagged as daily-published.
func (f *Fetcher) Fetch(ctx context.Context, target ingest.Target) ([]byte, error) {
	var (
		resp     response
		fetchErr error
	)
	collector := f.buildCollector(target, &resp, &fetchErr)
	if err := f.runCollector(ctx, collector, target.URL, &fetchErr); err != nil {
		return nil, err
	}

	switch {
	case resp.status >= 200 && resp.status < 300:
		f.logger.Debug("Fetched", zap.String("url", target.URL), zap.Int("status", resp.status), zap.Int("bytes", len(resp.body)))
		return resp.body, nil
	case resp.status == http.StatusNotFound && target.NotYetAvailableOn404:
		return nil, fmt.Errorf("%s: %w", target.URL, ingest.ErrNotYetAvailable)
	default:
		return nil, &ingest.FetchStatusError{
			URL:    target.URL,
			Code:   resp.status,
			Reason: http.StatusText(resp.status),
		}
	}
}

func (f *Fetcher) buildCollector(target ingest.Target, resp *response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	f.configureCollectorHooks(collector, target, resp, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	target ingest.Target,
	resp *response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(target, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*resp = response{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*resp = response{status: r.StatusCode, body: append([]byte(nil), r.Body...)}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("plain fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return &ingest.TransportError{URL: url, Err: *fetchErr}
		}
		if err != nil {
			return &ingest.TransportError{URL: url, Err: err}
		}
		return nil
	}
}

// applyHeaders sets a browser-like header set, then config and target overrides.
func (f *Fetcher) applyHeaders(target ingest.Target, r *colly.Request) {
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	r.Headers.Set("Upgrade-Insecure-Requests", "1")
	r.Headers.Set("sec-ch-ua", `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`)
	r.Headers.Set("sec-ch-ua-mobile", "?1")
	r.Headers.Set("sec-ch-ua-platform", `"Android"`)
	if target.URL != "" {
		r.Headers.Set("Referer", target.URL)
		if origin := originOf(target.URL); origin != "" {
			r.Headers.Set("Origin", origin)
		}
	}
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
	for key, values := range target.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func originOf(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
