package sequence

import "sync/atomic"

// Sequencer hands out strictly monotonic ids. The simulator draws order
// ids from one, and the journal keeps them, so a replayed run reproduces
// every id.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next returns start+1.
// Fresh run → start = 0
// Warm start from a checkpoint → start = highest restored id
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset moves the sequencer forward after a restore. It never moves back.
func (s *Sequencer) Reset(v uint64) {
	for {
		cur := s.next.Load()
		if v <= cur || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
