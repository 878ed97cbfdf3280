// Package bridge drives the hardware sleepiness indicator from the exported
// snapshot. The command format and smoothing must stay byte-compatible with
// existing firmware: "P" plus the smoothed percentage in three digits.
package bridge

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/mqttc"
	"github.com/andresmejia3/vigil/internal/snapshot"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultAlpha        = 0.7

	// Levels is the number of lit segments at 100%.
	Levels = 7

	// OffCommand is sent on shutdown.
	OffCommand = "P000"
)

// Transport carries commands to the indicator.
type Transport interface {
	Send(cmd string) error
	Close() error
}

// round matches Python's round(): ties go to the even integer.
func round(v float64) int {
	return int(math.RoundToEven(v))
}

// Smooth returns the next displayed percentage.
func Smooth(displayed, raw int, alpha float64) int {
	return round(float64(displayed) + alpha*float64(raw-displayed))
}

// Level maps a percentage onto 0..Levels.
func Level(pct int) int {
	return round(float64(pct) / 100 * Levels)
}

// FormatCommand renders the 4-character indicator command.
func FormatCommand(pct int) string {
	return fmt.Sprintf("P%03d", pct)
}

// Percentage extracts the first record's sleep_percentage, clamped to 0..100
// and rounded. Records without a numeric percentage are skipped; no usable
// record yields 0.
func Percentage(records []snapshot.Record) (int, snapshot.Record, bool) {
	for _, r := range records {
		if !r.HasPercentage() {
			continue
		}
		pct := math.Min(math.Max(r.SleepPercentage, 0), 100)
		return round(pct), r, true
	}
	return 0, snapshot.Record{}, false
}

// Bridge polls a snapshot file and forwards changes to a Transport.
type Bridge struct {
	path      string
	transport Transport
	interval  time.Duration
	alpha     float64
	logger    *zap.Logger

	displayed int
	lastSent  int
}

func New(path string, t Transport, interval time.Duration, alpha float64, logger *zap.Logger) *Bridge {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{path: path, transport: t, interval: interval, alpha: alpha, logger: logger, lastSent: -1}
}

// Displayed is the current smoothed percentage.
func (b *Bridge) Displayed() int {
	return b.displayed
}

// load reads the snapshot. Any read or decode problem reads as 0.
func (b *Bridge) load() int {
	records, err := snapshot.Read(b.path)
	if err != nil {
		b.logger.Warn("snapshot unavailable", zap.String("path", b.path), zap.Error(err))
		return 0
	}
	pct, rec, ok := Percentage(records)
	if !ok {
		b.logger.Debug("no record with sleep_percentage")
		return 0
	}
	b.logger.Info("extracted sleep percentage",
		zap.Int("percentage", pct),
		zap.String("status", rec.Status),
		zap.String("subject", rec.ID))
	return pct
}

// Step runs one poll cycle and reports whether a command was sent.
func (b *Bridge) Step() (bool, error) {
	raw := b.load()
	b.displayed = Smooth(b.displayed, raw, b.alpha)
	if b.displayed == b.lastSent {
		b.logger.Debug("no change", zap.Int("displayed", b.displayed))
		return false, nil
	}
	cmd := FormatCommand(b.displayed)
	if err := b.transport.Send(cmd); err != nil {
		return false, fmt.Errorf("send %s: %w", cmd, err)
	}
	b.logger.Info("indicator updated",
		zap.Int("raw", raw),
		zap.Int("displayed", b.displayed),
		zap.String("level", fmt.Sprintf("%d/%d", Level(b.displayed), Levels)),
		zap.String("command", cmd))
	b.lastSent = b.displayed
	return true, nil
}

// Run polls until ctx is done or the transport fails, then always sends
// OffCommand and closes the transport.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge started", zap.String("path", b.path), zap.Duration("interval", b.interval))
	defer b.shutdown()

	for {
		start := time.Now()
		if _, err := b.Step(); err != nil {
			b.logger.Error("transport error", zap.Error(err))
			return err
		}
		wait := b.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			b.logger.Info("shutting down")
			return nil
		case <-t.C:
		}
	}
}

func (b *Bridge) shutdown() {
	if err := b.transport.Send(OffCommand); err != nil {
		b.logger.Error("failed to send off command", zap.Error(err))
	}
	if err := b.transport.Close(); err != nil {
		b.logger.Error("failed to close transport", zap.Error(err))
	}
	b.logger.Info("indicator off")
}

// --- Transports ---

// DeviceTransport writes commands to a character device or file, e.g. a
// serial port already configured with stty.
type DeviceTransport struct {
	f *os.File
}

func OpenDevice(path string) (*DeviceTransport, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DeviceTransport{f: f}, nil
}

func (d *DeviceTransport) Send(cmd string) error {
	if _, err := d.f.WriteString(cmd); err != nil {
		return err
	}
	return d.f.Sync()
}

func (d *DeviceTransport) Close() error {
	return d.f.Close()
}

// MQTTTransport publishes each command, retained, to a topic.
type MQTTTransport struct {
	pub   mqttc.Publisher
	topic string
	close func()
}

// NewMQTTTransport wraps pub. closeFn (may be nil) runs on Close.
func NewMQTTTransport(pub mqttc.Publisher, topic string, closeFn func()) *MQTTTransport {
	return &MQTTTransport{pub: pub, topic: topic, close: closeFn}
}

func (m *MQTTTransport) Send(cmd string) error {
	return m.pub.Publish(m.topic, 1, true, []byte(cmd))
}

func (m *MQTTTransport) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}

// LogTransport only logs commands.
type LogTransport struct {
	Logger *zap.Logger
}

func (l LogTransport) Send(cmd string) error {
	l.Logger.Info("dry-run command", zap.String("command", cmd))
	return nil
}

func (l LogTransport) Close() error { return nil }
