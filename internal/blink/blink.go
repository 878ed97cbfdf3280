// Package blink counts closed-eye runs and flags microsleeps.
package blink

import "time"

const (
	// DefaultMicrosleepFrames is the run length that must be exceeded to flag a microsleep.
	DefaultMicrosleepFrames = 30

	// DefaultMinGap separates two registered blinks.
	DefaultMinGap = 500 * time.Millisecond
)

// Event is a finalized closed-eye run, produced on the reopening frame.
type Event struct {
	StartTime      time.Time
	EndTime        time.Time
	DurationFrames int
	IsMicrosleep   bool
	// Registered is false when the run began within MinGap of the previous
	// registered blink's end and was therefore not counted as a new blink.
	Registered bool
}

// Detector tracks the current closed-eye run independently of the classifier's debounce.
type Detector struct {
	microsleepFrames int
	minGap           time.Duration

	run      int
	runStart time.Time

	lastEnd     time.Time
	hasLast     bool
	total       int
	microsleeps int
}

// New creates a detector. Non-positive arguments fall back to the defaults.
func New(microsleepFrames int, minGap time.Duration) *Detector {
	if microsleepFrames < 1 {
		microsleepFrames = DefaultMicrosleepFrames
	}
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &Detector{microsleepFrames: microsleepFrames, minGap: minGap}
}

// Observe feeds one frame. A finalized Event is returned on the first open
// frame after a closed run.
//
// Registration is decided when the run ends, so a single long closure can
// never be counted twice.
func (d *Detector) Observe(ratio, threshold float64, ts time.Time) (Event, bool) {
	if ratio < threshold {
		if d.run == 0 {
			d.runStart = ts
		}
		d.run++
		return Event{}, false
	}
	if d.run == 0 {
		return Event{}, false
	}

	ev := Event{
		StartTime:      d.runStart,
		EndTime:        ts,
		DurationFrames: d.run,
		IsMicrosleep:   d.run > d.microsleepFrames,
	}
	d.run = 0

	if !d.hasLast || ev.StartTime.Sub(d.lastEnd) > d.minGap {
		ev.Registered = true
		d.total++
		d.lastEnd = ts
		d.hasLast = true
	}
	if ev.IsMicrosleep {
		d.microsleeps++
	}
	return ev, true
}

// Reset drops an in-progress run without producing an event (face lost).
func (d *Detector) Reset() {
	d.run = 0
}

// Closed reports the length of the in-progress closed run.
func (d *Detector) Closed() int {
	return d.run
}

// TotalBlinks returns the number of registered blinks.
func (d *Detector) TotalBlinks() int {
	return d.total
}

// Microsleeps returns the number of flagged microsleep runs.
func (d *Detector) Microsleeps() int {
	return d.microsleeps
}
