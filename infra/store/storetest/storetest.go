// Package storetest holds the behaviour every store.Store backend must share.
// Backends call Run from their own tests with a factory for a fresh store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"waiterboard/domain/waiter"
	"waiterboard/infra/store"
)

type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func Run(t *testing.T, open Factory) {
	t.Run("InsertGetOrder", func(t *testing.T) { testInsertGet(t, open(t)) })
	t.Run("UpdateOrder", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("DeleteOrder", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("ListOrders", func(t *testing.T) { testList(t, open(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, open(t)) })
	t.Run("Patients", func(t *testing.T) { testPatients(t, open(t)) })
	t.Run("AuditOrdering", func(t *testing.T) { testAuditOrdering(t, open(t)) })
	t.Run("NonASCIIMRN", func(t *testing.T) { testNonASCIIMRN(t, open(t)) })
	t.Run("ConcurrentReadWrite", func(t *testing.T) { testConcurrentReadWrite(t, open(t)) })
}

func sample(mrn string, offset time.Duration) waiter.Order {
	o, err := waiter.NewOrder{
		MRN:       mrn,
		FirstName: "Ada",
		LastName:  "Lovelace",
		DOB:       "1815-12-10",
		Initials:  "AL",
	}.Build(waiter.DefaultSettings(), base.Add(offset))
	if err != nil {
		panic(err)
	}
	return o
}

func insert(t *testing.T, s store.Store, o waiter.Order) waiter.Order {
	t.Helper()
	got, err := s.InsertOrder(context.Background(), o,
		waiter.NewAudit(waiter.ActionCreate, nil, &o, o.Initials, o.CreatedAt))
	require.NoError(t, err)
	return got
}

func testInsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := insert(t, s, sample("MRN-1", 0))
	b := insert(t, s, sample("MRN-2", time.Minute))
	require.NotZero(t, a.ID)
	require.Greater(t, b.ID, a.ID)

	got, err := s.GetOrder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = s.GetOrder(ctx, 9999)
	require.ErrorIs(t, err, waiter.ErrNotFound)

	hist, err := s.RecordAudit(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, waiter.ActionCreate, hist[0].Action)
	assert.Equal(t, a.ID, hist[0].RecordID)
	assert.Nil(t, hist[0].Before)
	require.NotNil(t, hist[0].After)
	assert.Equal(t, a.ID, hist[0].After.ID)
	assert.Equal(t, "AL", hist[0].Initials)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := insert(t, s, sample("MRN-1", 0))

	before := o
	ready := true
	now := base.Add(10 * time.Minute)
	require.True(t, o.Apply(waiter.Patch{Ready: &ready}, now))
	require.NoError(t, s.UpdateOrder(ctx, o,
		waiter.NewAudit(waiter.ActionUpdate, &before, &o, "JS", now)))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Ready)
	require.NotNil(t, got.ReadyAt)
	assert.True(t, got.ReadyAt.Equal(now))

	hist, err := s.RecordAudit(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, waiter.ActionUpdate, hist[1].Action)
	assert.False(t, hist[1].Before.Ready)
	assert.True(t, hist[1].After.Ready)
	assert.Equal(t, "JS", hist[1].Initials)

	missing := o
	missing.ID = 4242
	err = s.UpdateOrder(ctx, missing, waiter.NewAudit(waiter.ActionUpdate, &missing, &missing, "JS", now))
	require.ErrorIs(t, err, waiter.ErrNotFound)

	// a failed update writes no audit row
	hist, err = s.RecordAudit(ctx, 4242)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := insert(t, s, sample("MRN-1", 0))

	now := base.Add(time.Hour)
	require.NoError(t, s.DeleteOrder(ctx, o.ID, waiter.NewAudit(waiter.ActionDelete, &o, nil, "AL", now)))

	_, err := s.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, waiter.ErrNotFound)

	err = s.DeleteOrder(ctx, o.ID, waiter.NewAudit(waiter.ActionDelete, &o, nil, "AL", now))
	require.ErrorIs(t, err, waiter.ErrNotFound)

	hist, err := s.RecordAudit(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, waiter.ActionDelete, hist[1].Action)
	assert.Nil(t, hist[1].After)
	require.NotNil(t, hist[1].Before)
	assert.Equal(t, "MRN-1", hist[1].Before.MRN)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	open := insert(t, s, sample("MRN-1", 0))
	done := insert(t, s, sample("MRN-2", time.Minute))

	before := done
	yes := true
	done.Apply(waiter.Patch{Completed: &yes}, base.Add(2*time.Minute))
	require.NoError(t, s.UpdateOrder(ctx, done,
		waiter.NewAudit(waiter.ActionUpdate, &before, &done, "AL", base.Add(2*time.Minute))))

	active, err := s.ListOrders(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)

	all, err := s.ListOrders(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	kv, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Empty(t, kv)

	require.NoError(t, s.PutSettings(ctx, map[string]string{"waiter_due_minutes": "20", "dark_mode": "true"}))
	require.NoError(t, s.PutSettings(ctx, map[string]string{"waiter_due_minutes": "25"}))

	kv, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"waiter_due_minutes": "25", "dark_mode": "true"}, kv)
}

func testPatients(t *testing.T, s store.Store) {
	ctx := context.Background()

	p, err := s.InsertPatient(ctx, waiter.Patient{MRN: " mrn-7 ", FirstName: "Zed", LastName: "Young", DOB: "1990-01-01", CreatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, "MRN-7", p.MRN)
	assert.NotZero(t, p.ID)

	_, err = s.InsertPatient(ctx, waiter.Patient{MRN: "MRN-7", FirstName: "Other", LastName: "Person", CreatedAt: base})
	require.ErrorIs(t, err, waiter.ErrInvalid)

	n, err := s.UpsertPatients(ctx, []waiter.Patient{
		{MRN: "MRN-7", FirstName: "Dup", LastName: "Dup", CreatedAt: base},
		{MRN: "MRN-8", FirstName: "Amy", LastName: "Adams", CreatedAt: base},
		{MRN: "MRN-9", FirstName: "Bob", LastName: "Adams", CreatedAt: base},
		{MRN: "mrn-9", FirstName: "Bob", LastName: "Adams", CreatedAt: base},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.PatientByMRN(ctx, "mrn-8")
	require.NoError(t, err)
	assert.Equal(t, "Amy", got.FirstName)

	_, err = s.PatientByMRN(ctx, "MRN-404")
	require.ErrorIs(t, err, waiter.ErrNotFound)

	all, err := s.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Amy", "Bob", "Zed"}, []string{all[0].FirstName, all[1].FirstName, all[2].FirstName})
}

func testAuditOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		insert(t, s, sample("MRN-A", time.Duration(i)*time.Minute))
	}

	latest, err := s.ListAudit(ctx, 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Greater(t, latest[0].ID, latest[1].ID)
	assert.Greater(t, latest[1].ID, latest[2].ID)
	assert.True(t, latest[0].Timestamp.Equal(base.Add(4*time.Minute)))

	all, err := s.ListAudit(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testNonASCIIMRN(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.InsertPatient(ctx, waiter.Patient{MRN: "MRN-1", FirstName: "Ann", LastName: "Lee", CreatedAt: base})
	require.NoError(t, err)
	_, err = s.InsertPatient(ctx, waiter.Patient{MRN: "ÉMR-2", FirstName: "Élise", LastName: "Moreau", CreatedAt: base})
	require.NoError(t, err)

	got, err := s.PatientByMRN(ctx, "émr-2")
	require.NoError(t, err)
	assert.Equal(t, "Élise", got.FirstName)

	all, err := s.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ÉMR-2", all[1].MRN)
}

// Boards poll while staff edit; neither side may see a lock error.
func testConcurrentReadWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		yes := true
		for i := 0; i < 50; i++ {
			o := sample("MRN-C", 0)
			o, err := s.InsertOrder(gctx, o, waiter.NewAudit(waiter.ActionCreate, nil, &o, "AL", base))
			if err != nil {
				return err
			}
			before := o
			o.Apply(waiter.Patch{Ready: &yes}, base.Add(time.Minute))
			if err := s.UpdateOrder(gctx, o, waiter.NewAudit(waiter.ActionUpdate, &before, &o, "AL", base.Add(time.Minute))); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 3; r++ {
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return nil
				default:
				}
				if _, err := s.ListOrders(gctx, false); err != nil {
					return err
				}
				if _, err := s.ListAudit(gctx, 10); err != nil {
					return err
				}
			}
		})
	}
	require.NoError(t, g.Wait())

	orders, err := s.ListOrders(ctx, false)
	require.NoError(t, err)
	assert.Len(t, orders, 50)
}
