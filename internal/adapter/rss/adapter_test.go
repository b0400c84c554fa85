package rss

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/adapter"
	"github.com/JakeFAU/noticewatch/internal/ingest"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Advisories</title>
    <item>
      <title>Level 2: Exercise Increased Caution</title>
      <link>https://example.org/advisories/a</link>
      <guid>https://example.org/advisories/a#guid</guid>
      <description>Reissued with updates.</description>
      <pubDate>Tue, 04 Mar 2025 10:00:00 -0500</pubDate>
      <dc:creator>Consular Affairs</dc:creator>
      <category domain="Threat-Level">Level 2</category>
      <category domain="Country-Tag">AA</category>
      <category domain="Keyword">crime</category>
    </item>
    <item>
      <title>Older notice</title>
      <link>https://example.org/advisories/b</link>
      <description>Nothing new.</description>
      <pubDate>Mon, 3 Mar 2025 08:00:00 GMT</pubDate>
      <author>desk@example.org</author>
    </item>
    <item>
      <title>No identity at all</title>
      <description>Dropped.</description>
    </item>
  </channel>
</rss>`

type stubFetcher struct {
	payload []byte
	err     error
	got     []ingest.Target
}

func (s *stubFetcher) Fetch(_ context.Context, target ingest.Target) ([]byte, error) {
	s.got = append(s.got, target)
	return s.payload, s.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newAdapter(f ingest.Fetcher, opts Options) *Adapter {
	endpoints := adapter.Endpoints{
		"advisories": ingest.Target{URL: "https://example.org/rss/{year}"},
	}
	clock := fixedClock{now: time.Date(2025, time.March, 5, 12, 0, 0, 0, time.Local)}
	return New(f, endpoints, clock, opts, nil)
}

func TestIngestParsesItems(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: []byte(sampleFeed)}
	records, err := newAdapter(f, Options{}).Ingest(context.Background(), "advisories", "state")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, f.got, 1)
	assert.Equal(t, "https://example.org/rss/2025", f.got[0].URL)

	first := records[0]
	assert.Equal(t, "https://example.org/advisories/a#guid", first.Identity)
	assert.Equal(t, "https://example.org/advisories/a", first.Link)
	assert.Equal(t, "state", first.Source)
	assert.Equal(t, "advisories", first.Category)
	assert.Equal(t, "Consular Affairs", first.Creator)
	assert.Equal(t, "Level 2", first.Extension.ClassificationTag)
	assert.Equal(t, "AA", first.Extension.RegionTag)
	assert.Equal(t, "crime", first.Extension.KeywordTag)
	assert.True(t, first.PublishedAt.Equal(time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)))

	second := records[1]
	assert.Equal(t, "https://example.org/advisories/b", second.Identity, "link is the fallback identity")
	assert.Equal(t, "desk@example.org", second.Author)
	assert.True(t, second.Extension.IsZero())
	assert.Equal(t, 3, second.PublishedAt.Day())
}

func TestIngestLimitKeepsNewest(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: []byte(sampleFeed)}
	records, err := newAdapter(f, Options{Limit: 1}).Ingest(context.Background(), "advisories", "state")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Level 2: Exercise Increased Caution", records[0].Title)
}

func TestIngestNilPayload(t *testing.T) {
	t.Parallel()

	records, err := newAdapter(&stubFetcher{}, Options{}).Ingest(context.Background(), "advisories", "state")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIngestFetchError(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{err: ingest.ErrNotYetAvailable}
	_, err := newAdapter(f, Options{}).Ingest(context.Background(), "advisories", "state")
	require.ErrorIs(t, err, ingest.ErrNotYetAvailable)
}

func TestIngestParseError(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: []byte("<rss><item><</item></rss>")}
	_, err := newAdapter(f, Options{}).Ingest(context.Background(), "advisories", "state")
	var parseErr *ingest.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "state", parseErr.Source)
	assert.Equal(t, ingest.KindParse, ingest.Kind(err))
}

func TestIngestUnknownCategory(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{}
	_, err := newAdapter(f, Options{}).Ingest(context.Background(), "nope", "state")
	require.Error(t, err)
	assert.Empty(t, f.got)
}

func TestParsePubDate(t *testing.T) {
	t.Parallel()

	assert.True(t, parsePubDate("").IsZero())
	assert.True(t, parsePubDate("yesterday").IsZero())
	assert.Equal(t, 2024, parsePubDate("2024-12-31").Year())
	assert.Equal(t, 2025, parsePubDate("Wed, 01 Jan 25 00:00:00 +0000").Year())
}
