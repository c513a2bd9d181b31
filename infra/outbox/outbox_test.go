package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiterboard/domain/waiter"
)

func openMem(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestRecordEncoding(t *testing.T) {
	in := Record{Seq: 7, State: StateFailed, Retries: 3, LastAttempt: 123456789, Payload: []byte("hello")}
	out, err := decodeRecord(7, encodeRecord(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeRecord(1, []byte{1, 2})
	require.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	o := openMem(t)

	seq, err := o.Put([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	require.NoError(t, o.MarkSent(seq))
	rec, err := o.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.NotZero(t, rec.LastAttempt)

	require.NoError(t, o.MarkFailed(seq))
	require.NoError(t, o.MarkFailed(seq))
	rec, err = o.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(2), rec.Retries)
	assert.Equal(t, []byte("a"), rec.Payload)

	require.NoError(t, o.MarkAcked(seq))
	rec, err = o.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, rec.State)

	_, err = o.Get(99)
	require.ErrorIs(t, err, waiter.ErrNotFound)
	require.ErrorIs(t, o.MarkSent(99), waiter.ErrNotFound)
}

func TestScanByStateAndRequeue(t *testing.T) {
	o := openMem(t)
	for i := 0; i < 4; i++ {
		_, err := o.Put([]byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, o.MarkSent(2))
	require.NoError(t, o.MarkSent(4))

	var sent []uint64
	require.NoError(t, o.ScanByState(StateSent, func(r Record) error {
		sent = append(sent, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{2, 4}, sent)

	n, err := o.Requeue()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := o.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[State]int{StateNew: 4}, counts)
}

func TestPurgeAcked(t *testing.T) {
	o := openMem(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := o.Put(nil)
		require.NoError(t, err)
	}
	require.NoError(t, o.MarkAcked(1))
	now = now.Add(time.Hour)
	require.NoError(t, o.MarkAcked(2))

	n, err := o.PurgeAcked(now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = o.Get(1)
	require.ErrorIs(t, err, waiter.ErrNotFound)
	_, err = o.Get(2)
	require.NoError(t, err)
	_, err = o.Get(3)
	require.NoError(t, err)
}

func TestNotifyStoresEvent(t *testing.T) {
	o := openMem(t)
	ev := waiter.Event{V: waiter.EventVersion, ID: "e1", Type: waiter.EventOrderCreated, OrderID: 5}
	require.NoError(t, o.Notify(context.Background(), ev))

	rec, err := o.Get(1)
	require.NoError(t, err)
	var got waiter.Event
	require.NoError(t, json.Unmarshal(rec.Payload, &got))
	assert.Equal(t, waiter.EventOrderCreated, got.Type)
	assert.Equal(t, int64(5), got.OrderID)
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	_, err = o.Put([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, o.Close())

	o, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer o.Close()
	seq, err := o.Put([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestUpperBoundCoversEventKeys(t *testing.T) {
	assert.Equal(t, "event0", string(upperBound()))
	assert.Less(t, string(keyFor(^uint64(0))), string(upperBound()))
}
