package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"waiterboard/snapshot"
)

// RunCleanupJob runs the auto-clear sweep every interval until ctx is done.
// The patient board also sweeps on read; this keeps the store tidy when
// nobody is looking at it.
func (s *WaiterService) RunCleanupJob(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.AutoClear(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("auto-clear failed", zap.Error(err))
			}
		}
	}
}

// Purger drops delivered events older than a cutoff.
type Purger interface {
	PurgeAcked(before time.Time) (int, error)
}

type SnapshotJob struct {
	Writer   *snapshot.Writer
	Interval time.Duration
	// optional; acked outbox entries older than Retention are dropped after
	// each snapshot
	Purger    Purger
	Retention time.Duration
}

// SnapshotOnce writes the active orders and current settings.
func (s *WaiterService) SnapshotOnce(ctx context.Context, w *snapshot.Writer) (string, error) {
	orders, err := s.ActiveOrders(ctx)
	if err != nil {
		return "", err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return "", err
	}
	var seq uint64
	for _, o := range orders {
		if uint64(o.ID) > seq {
			seq = uint64(o.ID)
		}
	}
	return w.Write(seq, s.now(), orders, settings)
}

func (s *WaiterService) RunSnapshotJob(ctx context.Context, job SnapshotJob) error {
	t := time.NewTicker(job.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			path, err := s.SnapshotOnce(ctx, job.Writer)
			if err != nil {
				s.log.Warn("snapshot failed", zap.Error(err))
				continue
			}
			s.log.Debug("snapshot written", zap.String("path", path))

			if job.Purger == nil {
				continue
			}
			n, err := job.Purger.PurgeAcked(s.now().Add(-job.Retention))
			if err != nil {
				s.log.Warn("outbox purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Debug("outbox purged", zap.Int("entries", n))
			}
		}
	}
}
