package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/ingest"
)

func TestExpandURL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 7, 9, 0, 0, 0, time.Local)
	assert.Equal(t,
		"https://www.aila.org/library/daily-immigration-news-clips-march-7-2025",
		ExpandURL("https://www.aila.org/library/daily-immigration-news-clips-{month}-{day}-{year}", now))
	assert.Equal(t, "https://example.org/feed", ExpandURL("https://example.org/feed", now))
}

func TestEndpointsResolve(t *testing.T) {
	t.Parallel()

	endpoints := Endpoints{
		"clips": ingest.Target{URL: "https://example.org/{year}", NotYetAvailableOn404: true},
	}
	target, err := endpoints.Resolve("clips", time.Date(2024, time.May, 1, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/2024", target.URL)
	assert.True(t, target.NotYetAvailableOn404)
	assert.Equal(t, "https://example.org/{year}", endpoints["clips"].URL, "resolve must not mutate the template")

	_, err = endpoints.Resolve("missing", time.Now())
	require.Error(t, err)
}
