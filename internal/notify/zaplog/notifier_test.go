package zaplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

func TestNotifyLogsEveryEntry(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	n := New(zap.New(core))

	err := n.Notify(context.Background(), notice.Delta{
		RunID: "run-1",
		Entries: []notice.DeltaEntry{
			{Link: "https://example.org/a", Source: "alpha", Category: "news", Title: "A"},
			{Link: "https://example.org/b", Source: "beta", Category: "alerts", Title: "B"},
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("New notice").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.org/b", entries[1].ContextMap()["link"])
	assert.Equal(t, "alerts", entries[1].ContextMap()["category"])

	summary := logs.FilterMessage("Delta delivered").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].ContextMap()["entries"])
}
