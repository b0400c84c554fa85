package htmllist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/adapter"
	"github.com/JakeFAU/noticewatch/internal/ingest"
)

const listing = `<html><body>
<ul class="news">
  <li class="entry" data-id="n-1">
    <a class="headline" href="/news/one">  First
      headline </a>
    <p class="summary">Summary one.</p>
    <span class="date">03/04/2025</span>
    <span class="by">Press Office</span>
  </li>
  <li class="entry" data-id="n-2">
    <a class="headline" href="https://other.example.org/two">Second</a>
    <span class="date">not a date</span>
  </li>
  <li class="entry">
    <span>no link, no id</span>
  </li>
</ul>
</body></html>`

type stubFetcher struct {
	payload []byte
	err     error
}

func (s stubFetcher) Fetch(context.Context, ingest.Target) ([]byte, error) {
	return s.payload, s.err
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, time.March, 4, 0, 0, 0, 0, time.Local) }

var endpoints = adapter.Endpoints{
	"news": ingest.Target{URL: "https://www.example.org/press/index.html"},
}

func TestIngestExtractsItems(t *testing.T) {
	t.Parallel()

	a, err := New(stubFetcher{payload: []byte(listing)}, endpoints, fixedClock{}, Selectors{
		Item:            "li.entry",
		Title:           "a.headline",
		Link:            "a.headline",
		Description:     "p.summary",
		Author:          ".by",
		Published:       ".date",
		PublishedLayout: "01/02/2006",
	}, nil)
	require.NoError(t, err)

	records, err := a.Ingest(context.Background(), "news", "press")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "https://www.example.org/news/one", records[0].Identity)
	assert.Equal(t, "https://www.example.org/news/one", records[0].Link)
	assert.Equal(t, "First headline", records[0].Title)
	assert.Equal(t, "Summary one.", records[0].Description)
	assert.Equal(t, "Press Office", records[0].Author)
	assert.Equal(t, "press", records[0].Source)
	assert.Equal(t, "news", records[0].Category)
	assert.Equal(t, time.Date(2025, time.March, 4, 0, 0, 0, 0, time.Local), records[0].PublishedAt)

	assert.Equal(t, "https://other.example.org/two", records[1].Link)
	assert.True(t, records[1].PublishedAt.IsZero())
}

func TestIngestIdentityAttr(t *testing.T) {
	t.Parallel()

	a, err := New(stubFetcher{payload: []byte(listing)}, endpoints, fixedClock{}, Selectors{
		Item:         "li.entry",
		Title:        "a",
		IdentityAttr: "data-id",
	}, nil)
	require.NoError(t, err)

	records, err := a.Ingest(context.Background(), "news", "press")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "n-1", records[0].Identity)
	assert.Empty(t, records[0].Link)
	assert.Equal(t, "n-2", records[1].Identity)
}

func TestIngestNilPayloadAndErrors(t *testing.T) {
	t.Parallel()

	sel := Selectors{Item: "li", Link: "a"}
	a, err := New(stubFetcher{}, endpoints, fixedClock{}, sel, nil)
	require.NoError(t, err)
	records, err := a.Ingest(context.Background(), "news", "press")
	require.NoError(t, err)
	assert.Empty(t, records)

	a, err = New(stubFetcher{err: ingest.ErrNotYetAvailable}, endpoints, fixedClock{}, sel, nil)
	require.NoError(t, err)
	_, err = a.Ingest(context.Background(), "news", "press")
	require.ErrorIs(t, err, ingest.ErrNotYetAvailable)
}

func TestSelectorsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sel     Selectors
		wantErr bool
	}{
		{name: "missing item", sel: Selectors{Link: "a"}, wantErr: true},
		{name: "no identity source", sel: Selectors{Item: "li"}, wantErr: true},
		{name: "link", sel: Selectors{Item: "li", Link: "a"}},
		{name: "identity attr", sel: Selectors{Item: "li", IdentityAttr: "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.sel.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
