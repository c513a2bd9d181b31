package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing IDs for pebble-backed key spaces
// (orders, audit rows, outbox events).
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next() returns start+1.
// On a fresh store start = 0; on reopen start = highest stored ID.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued ID.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Observe raises the sequencer to at least v. Used while scanning existing
// keys at open so reopened stores never reissue an ID.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.next.Load()
		if v <= cur || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
