// Package rss is a generic adapter for RSS 2.0 style feeds.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/adapter"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Category domains that carry extension tags.
const (
	domainThreatLevel = "Threat-Level"
	domainCountryTag  = "Country-Tag"
	domainKeyword     = "Keyword"
)

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 -0700",
	"Mon, 02 Jan 06 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Options tune the adapter.
type Options struct {
	// Limit keeps only the N most recently published items; 0 keeps all.
	Limit int
}

// Adapter fetches and parses an RSS feed per category.
type Adapter struct {
	fetcher   ingest.Fetcher
	endpoints adapter.Endpoints
	clock     ingest.Clock
	opts      Options
	logger    *zap.Logger
}

// New creates an RSS adapter.
func New(fetcher ingest.Fetcher, endpoints adapter.Endpoints, clock ingest.Clock, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		fetcher:   fetcher,
		endpoints: endpoints,
		clock:     clock,
		opts:      opts,
		logger:    logger.Named("rss"),
	}
}

// Ingest fetches the category's feed and returns one record per identifiable item.
func (a *Adapter) Ingest(ctx context.Context, category, source string) ([]notice.Record, error) {
	target, err := a.endpoints.Resolve(category, a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	payload, err := a.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", source, category, err)
	}
	if payload == nil {
		return nil, nil
	}
	records, err := Parse(payload, category, source)
	if err != nil {
		return nil, &ingest.ParseError{Source: source, Category: category, Err: err}
	}
	if a.opts.Limit > 0 && len(records) > a.opts.Limit {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].PublishedAt.After(records[j].PublishedAt)
		})
		records = records[:a.opts.Limit]
	}
	a.logger.Debug("Parsed feed", zap.String("source", source), zap.String("category", category), zap.Int("records", len(records)))
	return records, nil
}

// Parse extracts records from an RSS document. Items without a guid or link are omitted.
func Parse(payload []byte, category, source string) ([]notice.Record, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	items, err := xmlquery.QueryAll(doc, "//item")
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	records := make([]notice.Record, 0, len(items))
	for _, item := range items {
		rec := parseItem(item)
		if rec.Identity == "" {
			continue
		}
		rec.Source = source
		rec.Category = category
		records = append(records, rec)
	}
	return records, nil
}

func parseItem(item *xmlquery.Node) notice.Record {
	var (
		rec  notice.Record
		guid string
	)
	for child := item.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		text := strings.TrimSpace(child.InnerText())
		switch child.Data {
		case "title":
			rec.Title = text
		case "link":
			rec.Link = text
		case "description":
			rec.Description = text
		case "pubDate", "date":
			rec.PublishedAt = parsePubDate(text)
		case "creator", "source":
			if rec.Creator == "" {
				rec.Creator = text
			}
		case "author":
			rec.Author = text
		case "guid":
			guid = text
		case "identifier":
			if guid == "" {
				guid = text
			}
		case "category":
			switch child.SelectAttr("domain") {
			case domainThreatLevel:
				rec.Extension.ClassificationTag = text
			case domainCountryTag:
				rec.Extension.RegionTag = text
			case domainKeyword:
				rec.Extension.KeywordTag = text
			}
		}
	}
	rec.Identity = guid
	if rec.Identity == "" {
		rec.Identity = rec.Link
	}
	return rec
}

// parsePubDate returns the zero time when no layout matches; the orchestrator
// then defaults it to the ingestion time.
func parsePubDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range pubDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
