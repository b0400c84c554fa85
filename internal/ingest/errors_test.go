package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not yet available", fmt.Errorf("aila: %w", ErrNotYetAvailable), KindNotYetAvailable},
		{"status", &FetchStatusError{URL: "https://x", Code: 500, Reason: "Internal Server Error"}, KindStatus},
		{"transport", &TransportError{URL: "https://x", Err: errors.New("dial tcp: refused")}, KindTransport},
		{"wrapped transport", fmt.Errorf("ingest: %w", &TransportError{Err: errors.New("eof")}), KindTransport},
		{"parse", &ParseError{Source: "uscis", Category: "news", Err: errors.New("bad xml")}, KindParse},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), KindCanceled},
		{"other", errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestErrorMessagesAndUnwrap(t *testing.T) {
	t.Parallel()

	root := errors.New("disk full")
	saveErr := &StoreSaveError{Err: root}
	require.ErrorIs(t, saveErr, root)
	assert.Contains(t, saveErr.Error(), "save history")

	loadErr := &StoreLoadError{Err: root}
	require.ErrorIs(t, loadErr, root)
	assert.Contains(t, loadErr.Error(), "load history")

	statusErr := &FetchStatusError{URL: "https://example.com", Code: 403, Reason: "Forbidden"}
	assert.Equal(t, "fetch https://example.com: status 403 Forbidden", statusErr.Error())
}

func TestTimerPauserHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	TimerPauser{}.Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestTimerPauserWaits(t *testing.T) {
	t.Parallel()

	start := time.Now()
	TimerPauser{}.Pause(context.Background(), 20*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
