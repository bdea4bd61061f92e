// Package series holds the in-memory time series of adjusted brick
// counts shared between the poller and the dashboard.
package series

import (
	"sync"
	"time"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/counter"
)

// Entry is a single observation of the adjusted count.
type Entry struct {
	// Timestamp is the wall-clock time of day (HH:MM:SS).
	Timestamp string
	// Adjusted is the corrected cumulative count.
	Adjusted int64
}

// Bucket holds every adjusted count observed within one five minute
// window of the day.
type Bucket struct {
	Label  string
	Values []int64
}

// BricksPerMinute returns the average bricks per observation in the
// bucket, or 0 when fewer than two values were observed.
func (b Bucket) BricksPerMinute() float64 {
	if len(b.Values) < 2 {
		return 0
	}

	return float64(b.Values[len(b.Values)-1]-b.Values[0]) /
		float64(len(b.Values))
}

// Store is an append-only record of everything observed this session.
// Windowing to the most recent points happens on read.
type Store struct {
	pollInterval time.Duration

	mu       sync.Mutex
	entries  []Entry
	events   []counter.Event
	rates    []float64
	buckets  map[string]*Bucket
	order    []string
	resets   int
	revision uint64
}

// NewStore creates an empty store. pollInterval scales per-poll deltas
// into an hourly rate.
func NewStore(pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}

	return &Store{
		pollInterval: pollInterval,
		entries:      make([]Entry, 0, 1024),
		events:       make([]counter.Event, 0, 1024),
		rates:        make([]float64, 0, 1024),
		buckets:      make(map[string]*Bucket, 64),
		order:        make([]string, 0, 64),
	}
}

// Append records a new observation taken at the given wall-clock time.
// The rate sample and bucket assignment are derived in the same critical
// section so readers never see the three structures out of step.
func (s *Store) Append(entry Entry, event counter.Event, at time.Time) {
	label := clock.BucketLabel(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	if n := len(s.entries); n > 0 {
		delta := entry.Adjusted - s.entries[n-1].Adjusted
		rate = float64(delta) * (float64(time.Hour) / float64(s.pollInterval))
	}

	s.entries = append(s.entries, entry)
	s.events = append(s.events, event)
	s.rates = append(s.rates, rate)

	b, ok := s.buckets[label]
	if !ok {
		b = &Bucket{Label: label}
		s.buckets[label] = b
		s.order = append(s.order, label)
	}

	b.Values = append(b.Values, entry.Adjusted)

	if event == counter.EventResetDetected {
		s.resets++
	}

	s.revision++
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Revision returns a counter that increments on every Append.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision
}

// Snapshot returns a deep copy of the full store taken at one instant.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyLocked(len(s.entries), len(s.order))
}

// Window returns a consistent copy of the most recent points entries
// and rate samples and the most recent buckets buckets. Copying only the
// window keeps the critical section short on long-running sessions.
func (s *Store) Window(points, buckets int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyLocked(points, buckets)
}

func (s *Store) copyLocked(points, buckets int) Snapshot {
	from := tail(len(s.entries), points)
	bfrom := tail(len(s.order), buckets)

	snap := Snapshot{
		Total:    len(s.entries),
		Resets:   s.resets,
		Revision: s.revision,
		Entries:  append([]Entry(nil), s.entries[from:]...),
		Events:   append([]counter.Event(nil), s.events[from:]...),
		Rates:    append([]float64(nil), s.rates[from:]...),
		Buckets:  make([]Bucket, 0, len(s.order)-bfrom),
	}

	for _, label := range s.order[bfrom:] {
		b := s.buckets[label]
		snap.Buckets = append(snap.Buckets, Bucket{
			Label:  b.Label,
			Values: append([]int64(nil), b.Values...),
		})
	}

	return snap
}

func tail(length, n int) int {
	if n < 0 || n >= length {
		return 0
	}

	return length - n
}
