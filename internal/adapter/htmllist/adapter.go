// Package htmllist extracts notices from HTML listing pages using CSS selectors.
package htmllist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/adapter"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Selectors describe where each field lives inside a listing item.
// Field selectors are evaluated relative to the Item match; empty selectors leave the field blank.
type Selectors struct {
	Item            string `mapstructure:"item"`
	Title           string `mapstructure:"title"`
	Link            string `mapstructure:"link"`
	LinkAttr        string `mapstructure:"link_attr"`
	Description     string `mapstructure:"description"`
	Author          string `mapstructure:"author"`
	Creator         string `mapstructure:"creator"`
	Published       string `mapstructure:"published"`
	PublishedLayout string `mapstructure:"published_layout"`
	// IdentityAttr names an attribute on the item element holding a stable id.
	// When empty the absolute link is the identity.
	IdentityAttr string `mapstructure:"identity_attr"`
}

// Validate reports selector sets that cannot yield records.
func (s Selectors) Validate() error {
	if strings.TrimSpace(s.Item) == "" {
		return errors.New("item selector is required")
	}
	if s.Link == "" && s.IdentityAttr == "" {
		return errors.New("link selector or identity_attr is required")
	}
	return nil
}

// Adapter fetches a listing page per category and maps each item to a record.
type Adapter struct {
	fetcher   ingest.Fetcher
	endpoints adapter.Endpoints
	clock     ingest.Clock
	selectors Selectors
	logger    *zap.Logger
}

// New validates selectors and returns an adapter.
func New(fetcher ingest.Fetcher, endpoints adapter.Endpoints, clock ingest.Clock, selectors Selectors, logger *zap.Logger) (*Adapter, error) {
	if err := selectors.Validate(); err != nil {
		return nil, err
	}
	if selectors.LinkAttr == "" {
		selectors.LinkAttr = "href"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		fetcher:   fetcher,
		endpoints: endpoints,
		clock:     clock,
		selectors: selectors,
		logger:    logger.Named("htmllist"),
	}, nil
}

// Ingest fetches the category page and extracts records.
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
	base, err := url.Parse(target.URL)
	if err != nil {
		return nil, &ingest.ParseError{Source: source, Category: category, Err: err}
	}
	records, err := a.extract(payload, base)
	if err != nil {
		return nil, &ingest.ParseError{Source: source, Category: category, Err: err}
	}
	for i := range records {
		records[i].Source = source
		records[i].Category = category
	}
	a.logger.Debug("Parsed listing", zap.String("source", source), zap.String("category", category), zap.Int("records", len(records)))
	return records, nil
}

func (a *Adapter) extract(payload []byte, base *url.URL) ([]notice.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	sel := a.selectors
	var records []notice.Record
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		rec := notice.Record{
			Title:       text(item, sel.Title),
			Description: text(item, sel.Description),
			Author:      text(item, sel.Author),
			Creator:     text(item, sel.Creator),
		}
		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr(sel.LinkAttr); ok {
				rec.Link = absolute(base, strings.TrimSpace(href))
			}
		}
		if sel.Published != "" && sel.PublishedLayout != "" {
			if ts, perr := time.ParseInLocation(sel.PublishedLayout, text(item, sel.Published), time.Local); perr == nil {
				rec.PublishedAt = ts
			}
		}
		rec.Identity = rec.Link
		if sel.IdentityAttr != "" {
			if id, ok := item.Attr(sel.IdentityAttr); ok && strings.TrimSpace(id) != "" {
				rec.Identity = strings.TrimSpace(id)
			}
		}
		if rec.Identity == "" {
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

func absolute(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
