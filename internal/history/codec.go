package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

// storedRecord is the persisted value; identity lives in the enclosing key.
type storedRecord struct {
	Source            string `json:"source"`
	Category          string `json:"category"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Link              string `json:"link"`
	Author            string `json:"author"`
	Creator           string `json:"creator"`
	PublishedAt       string `json:"published_at"`
	IngestedAt        string `json:"ingested_at"`
	ClassificationTag string `json:"classification_tag,omitempty"`
	RegionTag         string `json:"region_tag,omitempty"`
	KeywordTag        string `json:"keyword_tag,omitempty"`
}

// EncodeRecord marshals r without its identity.
func EncodeRecord(r notice.Record) ([]byte, error) {
	data, err := json.Marshal(toStored(r))
	if err != nil {
		return nil, fmt.Errorf("marshal record %q: %w", r.Identity, err)
	}
	return data, nil
}

// DecodeRecord rebuilds the record stored under identity.
func DecodeRecord(identity string, raw []byte) (notice.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return notice.Record{}, fmt.Errorf("unmarshal record %q: %w", identity, err)
	}
	return fromStored(identity, sr)
}

// Marshal serializes the store as one JSON object ordered by Ordered.
func Marshal(s *Store) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the store to w as one JSON object ordered by Ordered.
func Encode(w io.Writer, s *Store) error {
	records := Ordered(s)
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, rec := range records {
		key, err := json.Marshal(rec.Identity)
		if err != nil {
			return fmt.Errorf("marshal identity: %w", err)
		}
		value, err := json.MarshalIndent(toStored(rec), "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal record %q: %w", rec.Identity, err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(records)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Unmarshal parses a persisted document. Empty input yields an empty store.
func Unmarshal(data []byte) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewStore(), nil
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads one JSON object from r, preserving key order as insertion order.
// Any malformed entry or timestamp fails the whole load with a StoreLoadError.
func Decode(r io.Reader) (*Store, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("read opening token: %w", err)}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("expected JSON object, got %v", tok)}
	}

	store := NewStore()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &ingest.StoreLoadError{Err: fmt.Errorf("read key: %w", err)}
		}
		identity, ok := keyTok.(string)
		if !ok {
			return nil, &ingest.StoreLoadError{Err: fmt.Errorf("expected string key, got %v", keyTok)}
		}
		var sr storedRecord
		if err := dec.Decode(&sr); err != nil {
			return nil, &ingest.StoreLoadError{Err: fmt.Errorf("decode record %q: %w", identity, err)}
		}
		rec, err := fromStored(identity, sr)
		if err != nil {
			return nil, &ingest.StoreLoadError{Err: err}
		}
		store.Put(rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("read closing token: %w", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ingest.StoreLoadError{Err: errors.New("trailing data after history object")}
	}
	return store, nil
}

// Ordered returns the records sorted newest first by published year, month and day.
// Records without a usable date go last; ties keep insertion order.
func Ordered(s *Store) []notice.Record {
	records := s.Records()
	keys := make([]dateKey, len(records))
	for i, rec := range records {
		keys[i] = newDateKey(rec)
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].newerThan(keys[idx[b]])
	})
	out := make([]notice.Record, len(records))
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}

type dateKey struct {
	year, month, day string
	ok               bool
}

func newDateKey(r notice.Record) dateKey {
	stamp := notice.FormatTimestamp(r.PublishedAt)
	datePart, _, _ := strings.Cut(stamp, "_")
	parts := strings.Split(datePart, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return dateKey{}
	}
	return dateKey{month: parts[0], day: parts[1], year: parts[2], ok: true}
}

func (k dateKey) newerThan(other dateKey) bool {
	if k.ok != other.ok {
		return k.ok
	}
	if !k.ok {
		return false
	}
	if k.year != other.year {
		return k.year > other.year
	}
	if k.month != other.month {
		return k.month > other.month
	}
	return k.day > other.day
}

func toStored(r notice.Record) storedRecord {
	return storedRecord{
		Source:            r.Source,
		Category:          r.Category,
		Title:             r.Title,
		Description:       r.Description,
		Link:              r.Link,
		Author:            r.Author,
		Creator:           r.Creator,
		PublishedAt:       notice.FormatTimestamp(r.PublishedAt),
		IngestedAt:        notice.FormatTimestamp(r.IngestedAt),
		ClassificationTag: r.Extension.ClassificationTag,
		RegionTag:         r.Extension.RegionTag,
		KeywordTag:        r.Extension.KeywordTag,
	}
}

func fromStored(identity string, sr storedRecord) (notice.Record, error) {
	published, err := notice.ParseTimestamp(sr.PublishedAt)
	if err != nil {
		return notice.Record{}, fmt.Errorf("record %q published_at: %w", identity, err)
	}
	ingested, err := notice.ParseTimestamp(sr.IngestedAt)
	if err != nil {
		return notice.Record{}, fmt.Errorf("record %q ingested_at: %w", identity, err)
	}
	return notice.Record{
		Identity:    identity,
		Source:      sr.Source,
		Category:    sr.Category,
		Title:       sr.Title,
		Description: sr.Description,
		Link:        sr.Link,
		Author:      sr.Author,
		Creator:     sr.Creator,
		PublishedAt: published,
		IngestedAt:  ingested,
		Extension: notice.Extension{
			ClassificationTag: sr.ClassificationTag,
			RegionTag:         sr.RegionTag,
			KeywordTag:        sr.KeywordTag,
		},
	}, nil
}
