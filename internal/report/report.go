// Package report computes the end-of-session summary and hands it to sinks.
package report

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/vigil/internal/history"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"go.uber.org/zap"
)

const (
	RecommendRest     = "rest"
	RecommendContinue = "continue monitoring"

	// RestPercentage is the final sleepiness above which rest is recommended.
	RestPercentage = 50.0
	// RestMicrosleeps is the microsleep count at which rest is recommended.
	RestMicrosleeps = 10

	// SummaryFile is the file name FileSink writes.
	SummaryFile = "session_summary.json"
)

type Summary struct {
	DurationSeconds      float64 `json:"duration_seconds"`
	TotalBlinks          int     `json:"total_blinks"`
	BlinkRatePerMinute   float64 `json:"blink_rate_per_minute"`
	MicrosleepCount      int     `json:"microsleep_count"`
	FinalSleepPercentage float64 `json:"final_sleep_percentage"`
	Recommendation       string  `json:"recommendation"`
}

// Summarize derives the session summary. A zero-length session has a zero
// blink rate.
func Summarize(duration time.Duration, totalBlinks, microsleeps int, finalPct float64) Summary {
	s := Summary{
		DurationSeconds:      duration.Seconds(),
		TotalBlinks:          totalBlinks,
		MicrosleepCount:      microsleeps,
		FinalSleepPercentage: finalPct,
		Recommendation:       RecommendContinue,
	}
	if s.DurationSeconds > 0 {
		s.BlinkRatePerMinute = float64(totalBlinks) / (s.DurationSeconds / 60)
	}
	if finalPct > RestPercentage || microsleeps >= RestMicrosleeps {
		s.Recommendation = RecommendRest
	}
	return s
}

// Export is everything a sink receives at session end.
type Export struct {
	SessionID string             `json:"session_id"`
	SubjectID string             `json:"subject_id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Summary   Summary            `json:"summary"`
	Intervals []history.Interval `json:"intervals"`
}

// Sink receives the finished session.
type Sink interface {
	Export(ctx context.Context, e Export) error
}

// FileSink writes the export as JSON into Dir.
type FileSink struct {
	Dir string
}

func (f FileSink) Path() string {
	return filepath.Join(f.Dir, SummaryFile)
}

func (f FileSink) Export(_ context.Context, e Export) error {
	if e.Intervals == nil {
		e.Intervals = []history.Interval{}
	}
	if err := utils.WriteJSONAtomic(f.Path(), e); err != nil {
		return fmt.Errorf("write session summary: %w: %v", types.ErrIO, err)
	}
	return nil
}

// Deliver hands e to every sink. Failures are logged and counted, never fatal.
func Deliver(ctx context.Context, logger *zap.Logger, e Export, sinks ...Sink) int {
	failed := 0
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Export(ctx, e); err != nil {
			failed++
			logger.Error("report sink failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
		}
	}
	return failed
}

// Print renders the summary and intervals as tables.
func Print(w io.Writer, e Export) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	s := e.Summary
	fmt.Fprintf(tw, "SESSION\t%s\n", e.SessionID)
	fmt.Fprintf(tw, "DURATION\t%.1fs\n", s.DurationSeconds)
	fmt.Fprintf(tw, "BLINKS\t%d (%.1f/min)\n", s.TotalBlinks, s.BlinkRatePerMinute)
	fmt.Fprintf(tw, "MICROSLEEPS\t%d\n", s.MicrosleepCount)
	fmt.Fprintf(tw, "SLEEPINESS\t%.1f%%\n", s.FinalSleepPercentage)
	fmt.Fprintf(tw, "RECOMMENDATION\t%s\n", s.Recommendation)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STATE\tSTART\tEND\tDURATION")
	fmt.Fprintln(tw, "-----\t-----\t---\t--------")
	for _, iv := range e.Intervals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2fs\n", iv.State, iv.Start.Local().Format("15:04:05.000"), iv.End.Local().Format("15:04:05.000"), iv.Duration)
	}
	return tw.Flush()
}
