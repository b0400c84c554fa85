package notice

// DeltaEntry is one accepted record handed to the notifier.
type DeltaEntry struct {
	Link     string `json:"link"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Record   Record `json:"-"`
}

// Delta is the ordered set of entries judged new or changed during one run.
type Delta struct {
	RunID   string       `json:"run_id"`
	Entries []DeltaEntry `json:"entries"`
}

// NewDeltaEntry projects r onto the notifier tuple.
func NewDeltaEntry(r Record) DeltaEntry {
	return DeltaEntry{
		Link:     r.Link,
		Source:   r.Source,
		Category: r.Category,
		Title:    r.Title,
		Record:   r,
	}
}

// Len returns the number of entries.
func (d Delta) Len() int {
	return len(d.Entries)
}
