package sequence

import (
	"sync"
	"testing"
)

func TestSequencerMonotonic(t *testing.T) {
	s := New(0)
	if got := s.Next(); got != 1 {
		t.Fatalf("first id = %d, want 1", got)
	}
	if got := s.Next(); got != 2 {
		t.Fatalf("second id = %d, want 2", got)
	}
	if s.Current() != 2 {
		t.Fatalf("current = %d, want 2", s.Current())
	}
}

func TestSequencerObserve(t *testing.T) {
	s := New(5)
	s.Observe(3)
	if s.Current() != 5 {
		t.Fatalf("observe lowered sequencer to %d", s.Current())
	}
	s.Observe(40)
	if got := s.Next(); got != 41 {
		t.Fatalf("next after observe = %d, want 41", got)
	}
}

func TestSequencerConcurrentUnique(t *testing.T) {
	s := New(0)
	const workers, per = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, s.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("got %d ids, want %d", len(seen), workers*per)
	}
}
