package clock

import (
	"fmt"
	"time"
)

// BucketWidth is the width of a rate bucket in minutes.
const BucketWidth = 5

// Clock provides wall-clock time to the poller and series store.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time { return f() }

type wallClock struct{}

// New returns a Clock backed by the system wall clock.
func New() Clock {
	return wallClock{}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// BucketLabel returns the HH:MM label of the five minute bucket
// containing t. The minute is floored to a multiple of BucketWidth.
func BucketLabel(t time.Time) string {
	minute := t.Minute() - (t.Minute() % BucketWidth)

	return fmt.Sprintf("%02d:%02d", t.Hour(), minute)
}

// BucketStart returns the start time of the bucket containing t.
func BucketStart(t time.Time) time.Time {
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute()-(t.Minute()%BucketWidth), 0, 0,
		t.Location(),
	)
}

// TimeOfDay formats t as HH:MM:SS.
func TimeOfDay(t time.Time) string {
	return t.Format("15:04:05")
}

// DateTime formats t as a full local date-time.
func DateTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Day formats t as the calendar day YYYY-MM-DD.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}
