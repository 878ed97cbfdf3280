// Package session owns one monitoring run: every per-frame component, the
// calibration store and the user actions applied between frames.
//
// A Session is driven by a single goroutine. Alerts and snapshots leave it as
// value copies over channels; nothing else reads its fields.
package session

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/vigil/internal/blink"
	"github.com/andresmejia3/vigil/internal/calibration"
	"github.com/andresmejia3/vigil/internal/classifier"
	"github.com/andresmejia3/vigil/internal/geometry"
	"github.com/andresmejia3/vigil/internal/history"
	"github.com/andresmejia3/vigil/internal/report"
	"github.com/andresmejia3/vigil/internal/sleepiness"
	"github.com/andresmejia3/vigil/internal/snapshot"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertSink receives the alert fired on confirmed entry into Sleeping.
// Send must not block.
type AlertSink interface {
	Send(a types.Alert) bool
	Close()
}

// SnapshotSink receives the exported snapshot after each frame.
// Publish must not block.
type SnapshotSink interface {
	Publish(rec snapshot.Record)
	Close(final snapshot.Record)
}

type Config struct {
	SubjectID   string
	SubjectType string

	// HistoryPath receives the interval list at finalize. Empty skips the write.
	HistoryPath string

	Debounce         int
	MicrosleepFrames int
	BlinkGap         time.Duration
	WindowSize       int
}

// FrameResult describes what one frame did.
type FrameResult struct {
	Index      int
	Timestamp  time.Time
	Face       bool
	Sample     types.RatioSample
	Threshold  float64
	State      classifier.State
	Transition *classifier.Transition
	Blink      *blink.Event
	Percentage float64
	// Warning is the decade boundary crossed upward on this frame, or 0.
	Warning float64
}

type Session struct {
	ID  string
	cfg Config

	logger *zap.Logger
	now    func() time.Time

	calib     *calibration.Store
	cls       *classifier.Classifier
	blinks    *blink.Detector
	window    *sleepiness.Window
	hist      *history.Tracker
	alerts    AlertSink
	snapshots SnapshotSink

	started   bool
	startedAt time.Time
	lastTS    time.Time
	frames    int
	export    *report.Export
}

type Option func(*Session)

// WithClock overrides time.Now for frames that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithAlerts(a AlertSink) Option {
	return func(s *Session) { s.alerts = a }
}

func WithSnapshots(p SnapshotSink) Option {
	return func(s *Session) { s.snapshots = p }
}

// WithID fixes the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.ID = id }
}

// New creates a session bound to a loaded calibration store.
func New(cfg Config, calib *calibration.Store, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowSize < 1 {
		cfg.WindowSize = sleepiness.DefaultCapacity
	}
	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		calib:  calib,
		cls:    classifier.New(cfg.Debounce),
		blinks: blink.New(cfg.MicrosleepFrames, cfg.BlinkGap),
		window: sleepiness.New(cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.ID))
	return s
}

// State is the confirmed classifier state.
func (s *Session) State() classifier.State {
	return s.cls.State()
}

// Percentage is the current sleepiness score.
func (s *Session) Percentage() float64 {
	return s.window.Percentage()
}

func (s *Session) begin(ts time.Time) {
	if s.started {
		return
	}
	s.started = true
	s.startedAt = ts
	s.lastTS = ts
	s.hist = history.NewTracker(ts)
	s.logger.Info("session started", zap.Time("at", ts), zap.String("subject", s.cfg.SubjectID))
}

// ProcessFrame classifies one frame and updates every aggregate. A frame
// without a face, or with unusable geometry, resets the classifier to Unknown.
func (s *Session) ProcessFrame(frame types.LandmarkFrame) FrameResult {
	ts := frame.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	s.begin(ts)
	if ts.After(s.lastTS) {
		s.lastTS = ts
	}
	s.frames++

	res := FrameResult{Index: frame.Index, Timestamp: ts, Threshold: s.calib.Threshold()}
	prevPct := s.window.Percentage()

	sample, err := geometry.Sample(frame.Face, ts)
	if err != nil {
		if frame.Face != nil {
			s.logger.Debug("dropping frame with unusable landmarks", zap.Int("frame", frame.Index), zap.Error(err))
		}
		s.blinks.Reset()
		if tr, changed := s.cls.Reset(); changed {
			s.onTransition(tr, ts, &res)
		}
	} else {
		res.Face = true
		res.Sample = sample
		if ev, ok := s.blinks.Observe(sample.Combined, res.Threshold, ts); ok {
			res.Blink = &ev
			if ev.IsMicrosleep {
				s.logger.Warn("microsleep detected",
					zap.Int("frames", ev.DurationFrames),
					zap.Duration("duration", ev.EndTime.Sub(ev.StartTime)))
			}
		}
		tr, changed := s.cls.Observe(sample.Combined, res.Threshold)
		s.window.Push(s.cls.State().Weight())
		if changed {
			s.onTransition(tr, ts, &res)
		}
	}

	res.State = s.cls.State()
	res.Percentage = s.window.Percentage()
	if b := sleepiness.Crossed(prevPct, res.Percentage); b > 0 {
		res.Warning = b
		s.logger.Warn("sleepiness rising", zap.Float64("boundary", b), zap.Float64("percentage", res.Percentage))
	}
	if tr := res.Transition; tr != nil && tr.To == classifier.Sleeping {
		s.alert(res)
	}

	if s.snapshots != nil {
		s.snapshots.Publish(snapshot.New(s.cfg.SubjectID, s.cfg.SubjectType, res.State.String(), res.Percentage, ts))
	}
	return res
}

func (s *Session) onTransition(tr classifier.Transition, ts time.Time, res *FrameResult) {
	res.Transition = &tr
	s.hist.Transition(tr.To, ts)
	s.logger.Info("status changed",
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.Float64("ratio", res.Sample.Combined))
}

func (s *Session) alert(res FrameResult) {
	if s.alerts == nil {
		return
	}
	s.alerts.Send(types.Alert{
		SessionID:       s.ID,
		SubjectID:       s.cfg.SubjectID,
		At:              res.Timestamp,
		Ratio:           res.Sample.Combined,
		SleepPercentage: res.Percentage,
	})
}

// HandleAction applies a user command and returns the text to show the user.
// ActionQuit is handled by Run.
func (s *Session) HandleAction(a Action) (string, error) {
	switch a.Kind {
	case ActionApply:
		p, err := s.calib.Apply(a.Name)
		if p.Name == "" {
			return "", err
		}
		return fmt.Sprintf("applied %s (%.2f)", p.Name, p.Value), err
	case ActionSave:
		p, err := s.calib.Save(a.Name, s.calib.Threshold())
		if p.Name == "" {
			return "", err
		}
		return fmt.Sprintf("saved %s (%.2f)", p.Name, p.Value), err
	case ActionEdit:
		p, err := s.calib.Edit(a.Name, a.Value)
		if p.Name == "" {
			return "", err
		}
		return fmt.Sprintf("edited %s (%.2f), live threshold %.2f", p.Name, p.Value, s.calib.Threshold()), err
	case ActionDelete:
		err := s.calib.Delete(a.Name)
		if err != nil && !errors.Is(err, types.ErrIO) {
			return "", err
		}
		return fmt.Sprintf("deleted %s, active %s (%.2f)", a.Name, s.calib.Active().Name, s.calib.Threshold()), err
	case ActionUp:
		return fmt.Sprintf("threshold %.2f", s.calib.Up()), nil
	case ActionDown:
		return fmt.Sprintf("threshold %.2f", s.calib.Down()), nil
	case ActionSet:
		v, err := s.calib.SetThreshold(a.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("custom threshold %.2f", v), nil
	case ActionList:
		return s.listProfiles(), nil
	case ActionQuit:
		return "stopping", nil
	default:
		return "", fmt.Errorf("unsupported action %v: %w", a.Kind, types.ErrInvalidInput)
	}
}

func (s *Session) listProfiles() string {
	var b strings.Builder
	WriteProfiles(&b, s.calib)
	return strings.TrimRight(b.String(), "\n")
}

// WriteProfiles prints the profiles newest first, marking the active one.
func WriteProfiles(w io.Writer, calib *calibration.Store) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, " \tNAME\tVALUE\tLAST USED")
	fmt.Fprintln(tw, " \t----\t-----\t---------")
	active := calib.Active().Name
	for _, p := range calib.ByRecency() {
		mark := " "
		if p.Name == active {
			mark = "*"
		}
		used := "-"
		if !p.LastUsedAt.IsZero() {
			used = p.LastUsedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", mark, p.Name, p.Value, used)
	}
	fmt.Fprintf(tw, " \tlive threshold\t%.2f\t\n", calib.Threshold())
	tw.Flush()
}

// Finalize closes the open interval, writes the history file, sends the
// final "Not running" snapshot and stops the alert sink. It returns the
// export for the report sinks. Later calls return the same export.
func (s *Session) Finalize() report.Export {
	if s.export != nil {
		return *s.export
	}
	end := s.lastTS
	if !s.started {
		s.begin(s.now())
		end = s.startedAt
	}
	intervals := s.hist.Finalize(end)

	pct := s.window.Percentage()
	e := report.Export{
		SessionID: s.ID,
		SubjectID: s.cfg.SubjectID,
		StartedAt: s.startedAt,
		EndedAt:   end,
		Summary:   report.Summarize(end.Sub(s.startedAt), s.blinks.TotalBlinks(), s.blinks.Microsleeps(), pct),
		Intervals: intervals,
	}
	s.export = &e

	if s.cfg.HistoryPath != "" {
		if err := history.WriteFile(s.cfg.HistoryPath, intervals); err != nil {
			s.logger.Error("failed to write state history", zap.Error(err))
		}
	}
	if s.snapshots != nil {
		s.snapshots.Close(snapshot.New(s.cfg.SubjectID, s.cfg.SubjectType, snapshot.StatusNotRunning, pct, s.now()))
	}
	if s.alerts != nil {
		s.alerts.Close()
	}

	s.logger.Info("session finalized",
		zap.Int("frames", s.frames),
		zap.Float64("duration_s", e.Summary.DurationSeconds),
		zap.Int("blinks", e.Summary.TotalBlinks),
		zap.Int("microsleeps", e.Summary.MicrosleepCount),
		zap.Float64("sleep_percentage", pct),
		zap.String("recommendation", e.Summary.Recommendation))
	return e
}
