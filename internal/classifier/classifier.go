// Package classifier debounces the eye-openness ratio into alertness states.
//
// Each frame falls in exactly one band relative to the active threshold T:
//
//	ratio < T             sleeping band
//	T <= ratio < T+0.04   drowsy band
//	otherwise             active band
//
// The band's counter is incremented and the other two are zeroed. A band is
// confirmed once its counter exceeds the debounce length.
package classifier

import "strings"

const (
	// DefaultDebounce is the consecutive same-band frame count that must be exceeded.
	DefaultDebounce = 16

	// DrowsyMargin is the width of the drowsy band above the threshold.
	DrowsyMargin = 0.04
)

// State is a confirmed alertness classification.
type State int

const (
	Unknown State = iota
	Active
	Drowsy
	Sleeping
)

var stateNames = [...]string{"Unknown", "Active", "Drowsy", "Sleeping"}

func (s State) String() string {
	if s < Unknown || s > Sleeping {
		return "Unknown"
	}
	return stateNames[s]
}

// Weight maps a state to its sleepiness weight (Active=0, Drowsy=1, Sleeping=2).
// Unknown weighs the same as Active.
func (s State) Weight() int {
	switch s {
	case Drowsy:
		return 1
	case Sleeping:
		return 2
	default:
		return 0
	}
}

// ParseState is the inverse of String. Unrecognized labels map to Unknown.
func ParseState(label string) State {
	for i, name := range stateNames {
		if strings.EqualFold(name, label) {
			return State(i)
		}
	}
	return Unknown
}

// MarshalText writes the state label.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a state label.
func (s *State) UnmarshalText(b []byte) error {
	*s = ParseState(string(b))
	return nil
}

// Band is the per-frame band a ratio falls into.
type Band int

const (
	SleepingBand Band = iota
	DrowsyBand
	ActiveBand
)

// BandOf returns the band for ratio under threshold.
func BandOf(ratio, threshold float64) Band {
	switch {
	case ratio < threshold:
		return SleepingBand
	case ratio < threshold+DrowsyMargin:
		return DrowsyBand
	default:
		return ActiveBand
	}
}

func (b Band) state() State {
	switch b {
	case SleepingBand:
		return Sleeping
	case DrowsyBand:
		return Drowsy
	default:
		return Active
	}
}

// Transition is emitted when the confirmed state changes.
type Transition struct {
	From State
	To   State
}

// Classifier holds the confirmed state and the three band counters.
// It is not safe for concurrent use; one frame loop owns it.
type Classifier struct {
	debounce int
	counters [3]int
	state    State
}

// New creates a classifier. A debounce < 1 falls back to DefaultDebounce.
func New(debounce int) *Classifier {
	if debounce < 1 {
		debounce = DefaultDebounce
	}
	return &Classifier{debounce: debounce}
}

// State returns the currently confirmed state.
func (c *Classifier) State() State {
	return c.state
}

// Count returns the current consecutive-frame counter of a band.
func (c *Classifier) Count(b Band) int {
	return c.counters[b]
}

// Observe feeds one frame's combined ratio. It reports a transition only when
// the confirmed state actually changes.
func (c *Classifier) Observe(ratio, threshold float64) (Transition, bool) {
	band := BandOf(ratio, threshold)
	for i := range c.counters {
		if Band(i) != band {
			c.counters[i] = 0
		}
	}
	c.counters[band]++

	if c.counters[band] <= c.debounce {
		return Transition{}, false
	}
	return c.confirm(band.state())
}

// Reset handles a frame without usable landmarks: all counters are zeroed and
// the confirmed state drops to Unknown.
func (c *Classifier) Reset() (Transition, bool) {
	c.counters = [3]int{}
	return c.confirm(Unknown)
}

func (c *Classifier) confirm(next State) (Transition, bool) {
	if next == c.state {
		return Transition{}, false
	}
	t := Transition{From: c.state, To: next}
	c.state = next
	return t, true
}
