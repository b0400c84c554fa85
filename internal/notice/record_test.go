package notice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	raws := []string{
		"01-02-2025_03-04-05",
		"12-31-1999_23-59-59",
		"07-04-2024_00-00-00",
	}
	for _, raw := range raws {
		ts, err := ParseTimestamp(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, FormatTimestamp(ts))
	}
}

func TestTimestampZero(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	assert.Empty(t, FormatTimestamp(time.Time{}))
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseTimestamp("2025-01-02T03:04:05Z")
	require.Error(t, err)
}

func TestNewDeltaEntry(t *testing.T) {
	t.Parallel()

	rec := Record{
		Identity: "guid-1",
		Source:   "travel",
		Category: "main_feed",
		Title:    "Level 2",
		Link:     "https://example.com/a",
	}
	entry := NewDeltaEntry(rec)
	assert.Equal(t, "https://example.com/a", entry.Link)
	assert.Equal(t, "travel", entry.Source)
	assert.Equal(t, "main_feed", entry.Category)
	assert.Equal(t, "Level 2", entry.Title)
	assert.Equal(t, rec, entry.Record)
}

func TestExtensionIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, Extension{}.IsZero())
	assert.False(t, Extension{RegionTag: "FR"}.IsZero())
}
