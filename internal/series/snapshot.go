package series

import "github.com/ethpandaops/brickdash/internal/counter"

// Snapshot is an immutable copy of store contents. Entries, Events and
// Rates always have equal length.
type Snapshot struct {
	// Total is the number of entries in the store when the copy was taken,
	// which may exceed len(Entries) for windowed copies.
	Total    int
	Resets   int
	Revision uint64
	Entries  []Entry
	Events   []counter.Event
	Rates    []float64
	Buckets  []Bucket
}

// Window trims the snapshot to the last points samples and the last
// buckets buckets.
func (s Snapshot) Window(points, buckets int) Snapshot {
	from := tail(len(s.Entries), points)
	bfrom := tail(len(s.Buckets), buckets)

	s.Entries = s.Entries[from:]
	s.Events = s.Events[from:]
	s.Rates = s.Rates[from:]
	s.Buckets = s.Buckets[bfrom:]

	return s
}

// Adjusted returns the adjusted counts in order.
func (s Snapshot) Adjusted() []int64 {
	out := make([]int64, len(s.Entries))

	for i, e := range s.Entries {
		out[i] = e.Adjusted
	}

	return out
}

// Timestamps returns the entry timestamps in order.
func (s Snapshot) Timestamps() []string {
	out := make([]string, len(s.Entries))

	for i, e := range s.Entries {
		out[i] = e.Timestamp
	}

	return out
}

// Latest returns the most recent entry, if any.
func (s Snapshot) Latest() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}

	return s.Entries[len(s.Entries)-1], true
}
