// Package sleepiness turns recent state weights into a 0-100 sleepiness score.
package sleepiness

// DefaultCapacity is the number of recent frames the score covers.
const DefaultCapacity = 100

// warnBoundaries are the decade lines whose upward crossing raises a warning.
var warnBoundaries = []float64{60, 70, 80, 90, 100}

// Window is a bounded FIFO of weights in {0,1,2} backed by a ring buffer.
type Window struct {
	buf  []int
	head int
	size int
	sum  int
}

// New creates a window. A capacity < 1 falls back to DefaultCapacity.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]int, capacity)}
}

// Push appends a weight, evicting the oldest once full, and returns the new
// percentage. Weights are clamped into [0,2].
func (w *Window) Push(weight int) float64 {
	if weight < 0 {
		weight = 0
	} else if weight > 2 {
		weight = 2
	}

	if w.size == len(w.buf) {
		w.sum -= w.buf[w.head]
	} else {
		w.size++
	}
	w.buf[w.head] = weight
	w.sum += weight
	w.head = (w.head + 1) % len(w.buf)

	return w.Percentage()
}

// Percentage is 100 * sum / (2 * len); 0 for an empty window.
func (w *Window) Percentage() float64 {
	if w.size == 0 {
		return 0
	}
	return 100 * float64(w.sum) / float64(2*w.size)
}

// Len is the number of samples currently held.
func (w *Window) Len() int {
	return w.size
}

// Crossed returns the highest warning boundary b with prev < b <= cur, or 0
// when the move from prev to cur crosses none of them upward.
func Crossed(prev, cur float64) float64 {
	var hit float64
	for _, b := range warnBoundaries {
		if prev < b && cur >= b {
			hit = b
		}
	}
	return hit
}
