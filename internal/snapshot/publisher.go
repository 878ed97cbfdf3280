package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher writes the newest record on its own goroutine so the frame loop
// never blocks on disk or network. A pending record that has not been written
// yet is replaced by a newer one.
type Publisher struct {
	path     string
	interval time.Duration
	kv       KVStore
	ttl      time.Duration
	logger   *zap.Logger

	pending chan Record
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

type PublisherOption func(*Publisher)

// WithMirror also stores every record in kv under a ttl.
func WithMirror(kv KVStore, ttl time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.kv = kv
		p.ttl = ttl
	}
}

// WithInterval limits file writes to one per interval.
func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.interval = d }
}

// NewPublisher starts the writer goroutine.
func NewPublisher(path string, logger *zap.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		path:    path,
		logger:  logger,
		pending: make(chan Record, 1),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish queues rec without blocking. Only the frame loop calls it.
func (p *Publisher) Publish(rec Record) {
	for {
		select {
		case p.pending <- rec:
			return
		default:
		}
		// full: drop the stale record and retry
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case rec := <-p.pending:
			p.write(rec)
		}
		if p.interval > 0 {
			t := time.NewTimer(p.interval)
			select {
			case <-p.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

func (p *Publisher) write(rec Record) {
	if err := Write(p.path, []Record{rec}); err != nil {
		p.logger.Warn("snapshot write failed", zap.String("path", p.path), zap.Error(err))
	}
	if p.kv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := Mirror(ctx, p.kv, rec, p.ttl); err != nil {
			p.logger.Warn("snapshot mirror failed", zap.String("subject", rec.ID), zap.Error(err))
		}
	}
}

// Close stops the writer, discards anything pending and writes final
// synchronously. It is safe to call more than once; later calls only write.
func (p *Publisher) Close(final Record) {
	p.once.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
	p.write(final)
}
