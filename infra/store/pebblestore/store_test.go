package pebblestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiterboard/domain/waiter"
	"waiterboard/infra/store"
	"waiterboard/infra/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenResumesSequences(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s, err := Open(Config{Dir: dir})
	require.NoError(t, err)

	o, err := waiter.NewOrder{MRN: "M1", FirstName: "A", LastName: "B", DOB: "2000-01-01", Initials: "AB"}.
		Build(waiter.DefaultSettings(), now)
	require.NoError(t, err)
	first, err := s.InsertOrder(ctx, o, waiter.NewAudit(waiter.ActionCreate, nil, &o, "AB", now))
	require.NoError(t, err)
	_, err = s.InsertPatient(ctx, waiter.Patient{MRN: "M1", FirstName: "A", LastName: "B", CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	second, err := s.InsertOrder(ctx, o, waiter.NewAudit(waiter.ActionCreate, nil, &o, "AB", now))
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)

	p, err := s.InsertPatient(ctx, waiter.Patient{MRN: "M2", FirstName: "C", LastName: "D", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)

	audit, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, int64(2), audit[0].ID)
	assert.Equal(t, second.ID, audit[0].RecordID)
}

func TestKeysSortNumerically(t *testing.T) {
	assert.Less(t, string(orderKey(9)), string(orderKey(10)))
	assert.Less(t, string(auditKey(99)), string(auditKey(100)))
	assert.Equal(t, "patient/MRN-1", string(patientKey(" mrn-1")))

	bounds := prefixBounds(prefixPatient)
	assert.Equal(t, "patient0", string(bounds.UpperBound))
	assert.Less(t, string(patientKey("ÉMR-2")), string(bounds.UpperBound))
}
