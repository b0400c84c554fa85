// Package notice defines the canonical record that flows through every stage of the pipeline.
package notice

import (
	"fmt"
	"time"
)

// TimestampLayout is the persisted timestamp format (MM-DD-YYYY_HH-MM-SS, local time).
const TimestampLayout = "01-02-2006_15-04-05"

// Extension carries source-specific tags. Only the travel advisory feed fills it.
type Extension struct {
	ClassificationTag string
	RegionTag         string
	KeywordTag        string
}

// IsZero reports whether no tag is set.
func (e Extension) IsZero() bool {
	return e.ClassificationTag == "" && e.RegionTag == "" && e.KeywordTag == ""
}

// Record is one published item from one source.
type Record struct {
	// Identity is the source-assigned stable key: a URL, a GUID or a DOM id.
	Identity    string
	Source      string
	Category    string
	Title       string
	Description string
	Link        string
	// Author is the byline; Creator is the section or desk attribution.
	Author      string
	Creator     string
	PublishedAt time.Time
	IngestedAt  time.Time
	Extension   Extension
}

// FormatTimestamp renders t in the persisted layout. The zero time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(TimestampLayout)
}

// ParseTimestamp parses a persisted timestamp in local time. "" yields the zero time.
func ParseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts, nil
}
