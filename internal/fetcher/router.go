// Package fetcher routes targets to the plain or browser fetcher by mode.
package fetcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/metrics"
)

// Router implements ingest.Fetcher by dispatching on Target.Mode.
type Router struct {
	plain   ingest.Fetcher
	browser ingest.Fetcher
}

// NewRouter builds a Router. browser may be nil when no browser is configured.
func NewRouter(plain, browser ingest.Fetcher) *Router {
	return &Router{plain: plain, browser: browser}
}

// Fetch dispatches target and records the outcome.
func (r *Router) Fetch(ctx context.Context, target ingest.Target) ([]byte, error) {
	mode := target.Mode
	if mode == "" {
		mode = ingest.ModePlain
	}

	var f ingest.Fetcher
	switch mode {
	case ingest.ModePlain:
		f = r.plain
	case ingest.ModeBrowser:
		f = r.browser
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", mode)
	}
	if f == nil {
		if mode == ingest.ModeBrowser {
			return nil, ingest.ErrBrowserUnavailable
		}
		return nil, fmt.Errorf("no fetcher configured for mode %q", mode)
	}

	payload, err := f.Fetch(ctx, target)
	switch {
	case err != nil:
		metrics.ObserveFetch(target.URL, string(mode), ingest.Kind(err), 0)
	case payload == nil:
		metrics.ObserveFetch(target.URL, string(mode), "empty", 0)
	default:
		metrics.ObserveFetch(target.URL, string(mode), "success", len(payload))
	}
	return payload, err
}
