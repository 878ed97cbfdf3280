package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name        string
		duration    time.Duration
		blinks      int
		microsleeps int
		pct         float64
		wantRate    float64
		wantRec     string
	}{
		{"calm", 2 * time.Minute, 30, 0, 10, 15, RecommendContinue},
		{"sleepy", time.Minute, 12, 1, 50.5, 12, RecommendRest},
		{"exactly fifty", time.Minute, 0, 0, 50, 0, RecommendContinue},
		{"microsleeps", 30 * time.Second, 5, 10, 0, 10, RecommendRest},
		{"zero duration", 0, 3, 0, 0, 0, RecommendContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.duration, tt.blinks, tt.microsleeps, tt.pct)
			assert.InDelta(t, tt.wantRate, s.BlinkRatePerMinute, 1e-9)
			assert.Equal(t, tt.wantRec, s.Recommendation)
			assert.Equal(t, tt.duration.Seconds(), s.DurationSeconds)
		})
	}
}

func sampleExport() Export {
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	mid := start.Add(20 * time.Second)
	end := start.Add(60 * time.Second)
	return Export{
		SessionID: "s-1",
		SubjectID: "1",
		StartedAt: start,
		EndedAt:   end,
		Summary:   Summarize(time.Minute, 14, 0, 12),
		Intervals: []history.Interval{
			{State: classifier.Unknown, Start: start, End: mid, Duration: 20},
			{State: classifier.Active, Start: mid, End: end, Duration: 40},
		},
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	sink := FileSink{Dir: dir}
	require.NoError(t, sink.Export(context.Background(), sampleExport()))

	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "s-1", got["session_id"])
	summary := got["summary"].(map[string]any)
	assert.Equal(t, 14.0, summary["total_blinks"])
	assert.Equal(t, RecommendContinue, summary["recommendation"])
	intervals := got["intervals"].([]any)
	require.Len(t, intervals, 2)
	assert.Equal(t, "Active", intervals[1].(map[string]any)["state"])
}

type failingSink struct{}

func (failingSink) Export(context.Context, Export) error { return errors.New("disk full") }

func TestDeliver_CountsFailures(t *testing.T) {
	ok := FileSink{Dir: t.TempDir()}
	failed := Deliver(context.Background(), zap.NewNop(), sampleExport(), ok, failingSink{}, nil)
	assert.Equal(t, 1, failed)
	_, err := os.Stat(ok.Path())
	assert.NoError(t, err)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleExport()))
	out := buf.String()
	assert.Contains(t, out, "RECOMMENDATION")
	assert.Contains(t, out, RecommendContinue)
	assert.Contains(t, out, "Unknown")
	assert.Contains(t, out, "40.00s")
}
