package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestTracker_ContiguousIntervals(t *testing.T) {
	tr := NewTracker(t0)
	tr.Transition(classifier.Active, at(0.6))
	tr.Transition(classifier.Drowsy, at(30))
	tr.Transition(classifier.Drowsy, at(31)) // same state ignored
	tr.Transition(classifier.Sleeping, at(45.5))
	tr.Transition(classifier.Active, at(50))
	ivs := tr.Finalize(at(61))

	require.Len(t, ivs, 5)
	want := []classifier.State{classifier.Unknown, classifier.Active, classifier.Drowsy, classifier.Sleeping, classifier.Active}
	var sum float64
	for i, iv := range ivs {
		assert.Equal(t, want[i], iv.State)
		assert.True(t, iv.End.After(iv.Start))
		if i > 0 {
			assert.Equal(t, ivs[i-1].End, iv.Start, "intervals must be contiguous")
		}
		sum += iv.Duration
	}
	assert.InDelta(t, 61.0, sum, 1e-6)
	assert.Equal(t, 61*time.Second, tr.Total())
}

func TestTracker_DropsZeroLength(t *testing.T) {
	tr := NewTracker(t0)
	tr.Transition(classifier.Active, t0) // confirmed on the very first instant
	tr.Transition(classifier.Unknown, at(10))
	tr.Transition(classifier.Active, at(10))
	ivs := tr.Finalize(at(20))

	// The zero-length Unknown blip is dropped and Active resumes.
	require.Len(t, ivs, 1)
	assert.Equal(t, classifier.Active, ivs[0].State)
	assert.Equal(t, t0, ivs[0].Start)
	assert.InDelta(t, 20.0, ivs[0].Duration, 1e-9)
}

func TestTracker_ClampsBackwardsClock(t *testing.T) {
	tr := NewTracker(at(5))
	tr.Transition(classifier.Active, at(10))
	tr.Transition(classifier.Drowsy, at(8)) // timestamp went backwards
	ivs := tr.Finalize(at(12))

	require.Len(t, ivs, 2)
	assert.Equal(t, at(10), ivs[1].Start)
	for _, iv := range ivs {
		assert.GreaterOrEqual(t, iv.Duration, 0.0)
	}
}

func TestTracker_FinalizeIdempotent(t *testing.T) {
	tr := NewTracker(t0)
	tr.Transition(classifier.Active, at(1))
	first := tr.Finalize(at(2))
	tr.Transition(classifier.Sleeping, at(3))
	second := tr.Finalize(at(4))
	assert.Equal(t, first, second)
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state_history.json")
	tr := NewTracker(t0)
	tr.Transition(classifier.Sleeping, at(2))
	in := tr.Finalize(at(3))

	require.NoError(t, WriteFile(path, in))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state": "Sleeping"`)
	assert.Contains(t, string(raw), `"duration": 1`)

	out, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, classifier.Sleeping, out[1].State)
	assert.True(t, out[1].Start.Equal(at(2)))
}

func TestWriteFile_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	require.NoError(t, WriteFile(path, nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFile(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, types.ErrNotFound))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[{"), 0644))
	_, err = ReadFile(bad)
	assert.True(t, errors.Is(err, types.ErrDecode))
}
