// Package notify delivers drowsiness alerts off the frame loop.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/andresmejia3/vigil/internal/mqttc"
	"github.com/andresmejia3/vigil/internal/types"
	"go.uber.org/zap"
)

// DefaultBuffer is the alert channel capacity.
const DefaultBuffer = 8

// Notifier drains an alert channel on its own goroutine. It never touches
// session state; each Alert is a value copy.
type Notifier struct {
	alerts chan types.Alert
	logger *zap.Logger
	pub    mqttc.Publisher
	topic  string

	wg   sync.WaitGroup
	once sync.Once
}

type Option func(*Notifier)

// WithMQTT publishes every alert as JSON to topic.
func WithMQTT(pub mqttc.Publisher, topic string) Option {
	return func(n *Notifier) {
		n.pub = pub
		n.topic = topic
	}
}

// WithBuffer sets the channel capacity.
func WithBuffer(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.alerts = make(chan types.Alert, size)
		}
	}
}

// Start launches the notifier goroutine.
func Start(logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{alerts: make(chan types.Alert, DefaultBuffer), logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Send hands an alert to the goroutine without blocking. It reports false
// when the buffer is full and the alert was dropped.
func (n *Notifier) Send(a types.Alert) bool {
	select {
	case n.alerts <- a:
		return true
	default:
		n.logger.Warn("alert dropped, notifier busy", zap.String("session", a.SessionID))
		return false
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for a := range n.alerts {
		n.deliver(a)
	}
}

func (n *Notifier) deliver(a types.Alert) {
	n.logger.Warn("ALERT: Wake up!",
		zap.String("session", a.SessionID),
		zap.String("subject", a.SubjectID),
		zap.Float64("ratio", a.Ratio),
		zap.Float64("sleep_percentage", a.SleepPercentage),
	)
	if n.pub == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		n.logger.Error("encode alert", zap.Error(err))
		return
	}
	if err := n.pub.Publish(n.topic, 1, false, payload); err != nil {
		n.logger.Error("publish alert", zap.String("topic", n.topic), zap.Error(err))
	}
}

// Close drains queued alerts and stops the goroutine. Send must not be
// called afterwards.
func (n *Notifier) Close() {
	n.once.Do(func() {
		close(n.alerts)
		n.wg.Wait()
	})
}
