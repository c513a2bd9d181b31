package broadcaster

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"waiterboard/infra/kafka"
	"waiterboard/infra/metrics"
	"waiterboard/infra/outbox"
)

const (
	DefaultInterval   = 250 * time.Millisecond
	DefaultMaxRetries = 10

	// MaxBackoff caps the wait between retries of one FAILED entry.
	MaxBackoff = time.Minute
)

type Broadcaster struct {
	outbox     *outbox.Outbox
	publisher  kafka.Publisher
	log        *zap.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	maxRetries uint32
	now        func() time.Time
}

type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithMaxRetries(n uint32) Option {
	return func(b *Broadcaster) { b.maxRetries = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(ob *outbox.Outbox, pub kafka.Publisher, log *zap.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		outbox:     ob,
		publisher:  pub,
		log:        log.Named("broadcaster"),
		metrics:    metrics.NopMetrics(),
		interval:   DefaultInterval,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ------------------------------------------------
// RUN LOOP
// ------------------------------------------------

// Run drains the outbox every interval until ctx is cancelled. Entries left
// SENT by a previous process are requeued first.
func (b *Broadcaster) Run(ctx context.Context) error {
	n, err := b.outbox.Requeue()
	if err != nil {
		return err
	}
	b.log.Info("started", zap.Duration("interval", b.interval), zap.Int("requeued", n))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped")
			return nil

		case <-ticker.C:
			if _, err := b.PublishOnce(ctx); err != nil {
				b.log.Warn("publish pass failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// PUBLISH PASS
// ------------------------------------------------

// PublishOnce sends every NEW entry and every FAILED entry that is under the
// retry limit and past its backoff. It returns how many were acknowledged.
func (b *Broadcaster) PublishOnce(ctx context.Context) (int, error) {
	acked := 0
	tried := map[uint64]bool{}
	now := b.now()
	send := func(rec outbox.Record) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tried[rec.Seq] {
			return nil
		}
		if rec.State == outbox.StateFailed {
			if rec.Retries >= b.maxRetries {
				return nil
			}
			if now.Sub(time.Unix(0, rec.LastAttempt)) < b.backoff(rec.Retries) {
				return nil
			}
		}
		tried[rec.Seq] = true

		// 1. mark SENT so a crash mid-publish is visible on restart
		if err := b.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}

		// 2. publish
		if err := b.publisher.Publish(ctx, partitionKey(rec.Payload), rec.Payload); err != nil {
			b.metrics.Broadcasts.With("result", "failed").Add(1)
			b.log.Warn("publish failed",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries),
				zap.Error(err))
			return b.outbox.MarkFailed(rec.Seq)
		}

		// 3. mark ACKED
		b.metrics.Broadcasts.With("result", "acked").Add(1)
		acked++
		return b.outbox.MarkAcked(rec.Seq)
	}

	if err := b.outbox.ScanByState(outbox.StateNew, send); err != nil {
		return acked, err
	}
	if err := b.outbox.ScanByState(outbox.StateFailed, send); err != nil {
		return acked, err
	}
	b.reportDepth()
	return acked, nil
}

// backoff doubles the interval for every failed attempt, up to MaxBackoff.
func (b *Broadcaster) backoff(retries uint32) time.Duration {
	d := b.interval
	for i := uint32(1); i < retries; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

func (b *Broadcaster) reportDepth() {
	counts, err := b.outbox.Counts()
	if err != nil {
		return
	}
	for _, s := range []outbox.State{outbox.StateNew, outbox.StateSent, outbox.StateAcked, outbox.StateFailed} {
		b.metrics.OutboxDepth.With("state", s.String()).Set(float64(counts[s]))
	}
}

// partitionKey keeps all events of one order on one partition.
func partitionKey(payload []byte) []byte {
	var head struct {
		OrderID int64 `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.OrderID == 0 {
		return nil
	}
	return []byte(strconv.FormatInt(head.OrderID, 10))
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
