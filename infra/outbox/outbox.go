// Package outbox is a durable queue of board events awaiting publication.
//
// Every committed mutation is written here before anyone outside the process
// hears about it; the broadcaster drains it towards the broker. Entries move
// NEW -> SENT -> ACKED, or to FAILED with a retry count.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"waiterboard/domain/waiter"
	"waiterboard/infra/sequence"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64 // unix nanos, 0 until first attempt
	Payload     []byte
}

const headerLen = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[headerLen:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.Newf("outbox record %d: short value (%d bytes)", seq, len(b))
	}
	payload := make([]byte, len(b)-headerLen)
	copy(payload, b[headerLen:])
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- Outbox --------------------

type Config struct {
	Dir      string
	InMemory bool
}

type Outbox struct {
	db  *pebble.DB
	seq *sequence.Sequencer

	// guards read-modify-write of a single record
	mu  sync.Mutex
	now func() time.Time
}

func Open(cfg Config) (*Outbox, error) {
	opts := &pebble.Options{}
	dir := cfg.Dir
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		if dir == "" {
			dir = "outbox"
		}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %q", dir)
	}

	o := &Outbox{db: db, seq: sequence.New(0), now: time.Now}
	last, err := o.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	o.seq.Observe(last)
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Put appends a NEW entry and returns its sequence number.
func (o *Outbox) Put(payload []byte) (uint64, error) {
	seq := o.seq.Next()
	rec := Record{Seq: seq, State: StateNew, Payload: payload}
	if err := o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "outbox put %d", seq)
	}
	return seq, nil
}

// Notify stores ev as a JSON payload.
func (o *Outbox) Notify(_ context.Context, ev waiter.Event) error {
	buf, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	_, err = o.Put(buf)
	return err
}

func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, errors.Wrapf(waiter.ErrNotFound, "outbox record %d", seq)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(seq, val)
}

func (o *Outbox) MarkSent(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateSent
		r.LastAttempt = o.now().UnixNano()
	})
}

func (o *Outbox) MarkAcked(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateAcked
		r.LastAttempt = o.now().UnixNano()
	})
}

func (o *Outbox) MarkFailed(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateFailed
		r.Retries++
		r.LastAttempt = o.now().UnixNano()
	})
}

func (o *Outbox) update(seq uint64, fn func(*Record)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	fn(&rec)
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState calls fn for every record in state, oldest first.
// fn may change the state of the record it is given.
func (o *Outbox) ScanByState(state State, fn func(Record) error) error {
	return o.scan(func(rec Record) error {
		if rec.State != state {
			return nil
		}
		return fn(rec)
	})
}

// Requeue moves SENT entries back to NEW. A crash between publish and ack
// leaves entries SENT; on startup they are retried.
func (o *Outbox) Requeue() (int, error) {
	n := 0
	err := o.ScanByState(StateSent, func(rec Record) error {
		n++
		return o.update(rec.Seq, func(r *Record) { r.State = StateNew })
	})
	return n, err
}

// PurgeAcked deletes ACKED entries last touched before the cutoff.
func (o *Outbox) PurgeAcked(before time.Time) (int, error) {
	b := o.db.NewBatch()
	defer b.Close()

	n := 0
	cutoff := before.UnixNano()
	err := o.ScanByState(StateAcked, func(rec Record) error {
		if rec.LastAttempt >= cutoff {
			return nil
		}
		n++
		return b.Delete(keyFor(rec.Seq), nil)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, errors.Wrap(b.Commit(pebble.Sync), "purge acked")
}

// Counts reports how many records sit in each state.
func (o *Outbox) Counts() (map[State]int, error) {
	out := map[State]int{}
	err := o.scan(func(rec Record) error {
		out[rec.State]++
		return nil
	})
	return out, err
}

func (o *Outbox) scan(fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Helpers --------------------

const prefix = "event/"

// upperBound is "event0", the first key past the event space.
func upperBound() []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(b[len(prefix):]), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad outbox key %q", b)
	}
	return seq, nil
}
