// Package adapter holds what the generic source adapters share: per-category
// endpoints and URL date placeholders.
package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/noticewatch/internal/ingest"
)

// Endpoints maps a category name to the target fetched for it.
type Endpoints map[string]ingest.Target

// Resolve returns the target for category with date placeholders expanded for now.
func (e Endpoints) Resolve(category string, now time.Time) (ingest.Target, error) {
	target, ok := e[category]
	if !ok {
		return ingest.Target{}, fmt.Errorf("unknown category %q", category)
	}
	target.URL = ExpandURL(target.URL, now)
	return target, nil
}

// ExpandURL replaces {month} (lowercase month name), {day} and {year} in raw.
// Daily-published sources put the publication date in the URL.
func ExpandURL(raw string, now time.Time) string {
	if !strings.Contains(raw, "{") {
		return raw
	}
	r := strings.NewReplacer(
		"{month}", strings.ToLower(now.Month().String()),
		"{day}", strconv.Itoa(now.Day()),
		"{year}", strconv.Itoa(now.Year()),
	)
	return r.Replace(raw)
}
