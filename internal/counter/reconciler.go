// Package counter turns the raw PLC brick counter, which restarts from
// zero periodically, into a continuous cumulative count.
package counter

// Event classifies a single reconciliation step.
type Event string

const (
	// EventNormal means the raw counter moved forward or stayed put.
	EventNormal Event = "NORMAL"
	// EventResetDetected means the raw counter went backwards and the
	// previous raw value was banked into the offset.
	EventResetDetected Event = "RESET_DETECTED"
)

// String returns the event name as written to the log.
func (e Event) String() string { return string(e) }

// State is a copy of the reconciler's internal bookkeeping.
type State struct {
	// PreviousRaw is the last raw value seen, nil before the first reading.
	PreviousRaw *int64
	// Offset is the sum of raw values banked across prior resets.
	Offset int64
	// Adjusted is the current corrected cumulative count.
	Adjusted int64
	// ResetCount is the number of resets observed this session.
	ResetCount int64
}

// Reconciler detects counter resets and maintains the adjusted count.
//
// Any decrease of the raw value is treated as a reset to (near) zero.
// A transient bad reading that happens to be smaller than the previous
// one is therefore indistinguishable from a genuine reset and will bank
// the previous value into the offset.
//
// Reconciler is not safe for concurrent use; the poller is its only caller.
type Reconciler struct {
	previousRaw int64
	seen        bool
	offset      int64
	adjusted    int64
	resetCount  int64
}

// NewReconciler creates a Reconciler with no prior readings.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile consumes the next raw reading and returns the adjusted
// cumulative count along with the classification of this step.
func (r *Reconciler) Reconcile(raw int64) (int64, Event) {
	event := EventNormal

	if r.seen && raw < r.previousRaw {
		r.resetCount++
		r.offset += r.previousRaw
		event = EventResetDetected
	}

	r.adjusted = r.offset + raw
	r.previousRaw = raw
	r.seen = true

	return r.adjusted, event
}

// State returns a snapshot of the reconciler's bookkeeping.
func (r *Reconciler) State() State {
	s := State{
		Offset:     r.offset,
		Adjusted:   r.adjusted,
		ResetCount: r.resetCount,
	}

	if r.seen {
		prev := r.previousRaw
		s.PreviousRaw = &prev
	}

	return s
}
