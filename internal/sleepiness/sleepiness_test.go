package sleepiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage_Empty(t *testing.T) {
	assert.Zero(t, New(DefaultCapacity).Percentage())
}

func TestPercentage_Weighted(t *testing.T) {
	w := New(DefaultCapacity)
	var got float64
	for _, weight := range []int{2, 2, 2, 0, 0} {
		got = w.Push(weight)
	}
	assert.InDelta(t, 60.0, got, 1e-9)
	assert.Equal(t, 5, w.Len())
}

func TestPush_EvictsOldest(t *testing.T) {
	w := New(4)
	for _, weight := range []int{2, 2, 2, 2} {
		w.Push(weight)
	}
	assert.InDelta(t, 100.0, w.Percentage(), 1e-9)

	w.Push(0)
	w.Push(0)
	assert.Equal(t, 4, w.Len())
	assert.InDelta(t, 50.0, w.Percentage(), 1e-9)
}

func TestPush_BoundedAndMonotonic(t *testing.T) {
	w := New(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		w.Push(0)
	}
	prev := w.Percentage()
	for i := 0; i < 2*DefaultCapacity; i++ {
		cur := w.Push(2)
		assert.GreaterOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0.0)
		assert.LessOrEqual(t, cur, 100.0)
		prev = cur
	}
	assert.InDelta(t, 100.0, prev, 1e-9)

	// Out of range weights are clamped.
	w2 := New(2)
	w2.Push(7)
	w2.Push(-3)
	assert.InDelta(t, 50.0, w2.Percentage(), 1e-9)
}

func TestCrossed(t *testing.T) {
	tests := []struct {
		prev, cur, want float64
	}{
		{49, 55, 0},
		{59.5, 60, 60},
		{60, 60.5, 0},
		{58, 72, 70},
		{80, 79, 0},
		{99, 100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Crossed(tt.prev, tt.cur), "%v -> %v", tt.prev, tt.cur)
	}
}
