package service

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"waiterboard/domain/waiter"
	"waiterboard/snapshot"
)

func TestRunCleanupJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)
	_, err = h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{Ready: ptr(true)}, "JA")
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	jobCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.svc.RunCleanupJob(jobCtx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		got, err := h.svc.GetOrder(ctx, o.ID)
		return err == nil && got.Completed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type countingPurger struct {
	calls  atomic.Int32
	cutoff atomic.Value
}

func (p *countingPurger) PurgeAcked(before time.Time) (int, error) {
	p.calls.Add(1)
	p.cutoff.Store(before)
	return 0, nil
}

func TestSnapshotOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)
	b, err := h.svc.CreateOrder(ctx, form("acute"))
	require.NoError(t, err)
	_, err = h.svc.UpdateOrder(ctx, a.ID, waiter.Patch{Completed: ptr(true)}, "JA")
	require.NoError(t, err)

	w := &snapshot.Writer{Dir: t.TempDir()}
	path, err := h.svc.SnapshotOnce(ctx, w)
	require.NoError(t, err)

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(b.ID), snap.Seq)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, b.ID, snap.Orders[0].ID)
	assert.Equal(t, waiter.DefaultSettings(), snap.Settings)
}

func TestRunSnapshotJob(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	purger := &countingPurger{}

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.svc.RunSnapshotJob(ctx, SnapshotJob{
			Writer:    &snapshot.Writer{Dir: dir},
			Interval:  5 * time.Millisecond,
			Purger:    purger,
			Retention: time.Hour,
		})
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err := snapshot.Load(filepath.Join(dir, snapshot.FileName))
	require.NoError(t, err)
	assert.True(t, purger.cutoff.Load().(time.Time).Equal(t0.Add(-time.Hour)))
}
