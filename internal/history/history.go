// Package history records the timeline of confirmed states as contiguous,
// non-overlapping intervals.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
)

// Interval is one closed span of a single confirmed state. Duration is in seconds.
type Interval struct {
	State    classifier.State `json:"state"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
	Duration float64          `json:"duration"`
}

// Tracker keeps exactly one open interval and an append-only list of closed ones.
type Tracker struct {
	state     classifier.State
	start     time.Time
	closed    []Interval
	finalized bool
}

// NewTracker opens an Unknown interval at the session start.
func NewTracker(start time.Time) *Tracker {
	return &Tracker{state: classifier.Unknown, start: start}
}

// Transition closes the open interval at now and opens one for next.
// Calls with the same state, or after Finalize, are ignored.
func (t *Tracker) Transition(next classifier.State, now time.Time) {
	if t.finalized || next == t.state {
		return
	}
	now = t.close(now)
	// A zero-length blip was dropped: resume the previous interval instead of
	// appending a second one with the same state.
	if n := len(t.closed); n > 0 && t.closed[n-1].State == next && t.closed[n-1].End.Equal(now) {
		t.start = t.closed[n-1].Start
		t.closed = t.closed[:n-1]
		t.state = next
		return
	}
	t.state = next
	t.start = now
}

// Finalize force-closes the open interval and returns every interval.
// Further calls return the same list.
func (t *Tracker) Finalize(now time.Time) []Interval {
	if !t.finalized {
		t.close(now)
		t.finalized = true
	}
	return t.Intervals()
}

// Intervals returns a copy of the closed intervals.
func (t *Tracker) Intervals() []Interval {
	out := make([]Interval, len(t.closed))
	copy(out, t.closed)
	return out
}

// Total sums the durations of the closed intervals.
func (t *Tracker) Total() time.Duration {
	var d time.Duration
	for _, iv := range t.closed {
		d += iv.End.Sub(iv.Start)
	}
	return d
}

// close appends the open interval ending at now, clamped so it never ends
// before it started. Zero-length intervals are dropped. It returns the
// effective end time.
func (t *Tracker) close(now time.Time) time.Time {
	if now.Before(t.start) {
		now = t.start
	}
	if now.Equal(t.start) {
		return now
	}
	t.closed = append(t.closed, Interval{
		State:    t.state,
		Start:    t.start,
		End:      now,
		Duration: now.Sub(t.start).Seconds(),
	})
	return now
}

// WriteFile persists intervals as a JSON array using temp-file + rename.
func WriteFile(path string, intervals []Interval) error {
	if intervals == nil {
		intervals = []Interval{}
	}
	if err := utils.WriteJSONAtomic(path, intervals); err != nil {
		return fmt.Errorf("write history %s: %w: %v", path, types.ErrIO, err)
	}
	return nil
}

// ReadFile loads a history file written by WriteFile.
func ReadFile(path string) ([]Interval, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("history %s: %w", path, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read history %s: %w: %v", path, types.ErrIO, err)
	}
	var out []Interval
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode history %s: %w: %v", path, types.ErrDecode, err)
	}
	return out, nil
}
