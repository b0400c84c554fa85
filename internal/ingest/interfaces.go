// Package ingest holds the contracts shared by fetchers, adapters and the orchestrator.
package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// FetchMode selects how a target is retrieved.
type FetchMode string

const (
	// ModePlain issues a single HTTP GET.
	ModePlain FetchMode = "plain"
	// ModeBrowser renders the page in a scripted browser session.
	ModeBrowser FetchMode = "browser"
)

// Target describes one retrieval.
type Target struct {
	URL     string
	Mode    FetchMode
	Headers http.Header
	// ReadySelector is the DOM anchor awaited after a browser load.
	ReadySelector string
	// NotYetAvailableOn404 marks daily-published targets where 404 means "not out yet".
	NotYetAvailableOn404 bool
}

// Fetcher retrieves raw payloads. A nil payload with a nil error means no data this cycle.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) ([]byte, error)
}

// Adapter turns one (category, source) pair into canonical records.
// A nil slice with a nil error means the source had nothing for the category.
type Adapter interface {
	Ingest(ctx context.Context, category, source string) ([]notice.Record, error)
}

// Notifier receives the delta once per run.
type Notifier interface {
	Notify(ctx context.Context, delta notice.Delta) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser blocks for a delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}
