package grpcserver

import (
	"sync"

	"lobsim/domain/metrics"
	"lobsim/domain/orderbook"
	"lobsim/service"
)

// Store holds what the Results service serves. It follows a live run as an
// observer and takes the final result when the run ends.
type Store struct {
	mu      sync.Mutex
	snaps   []metrics.BookSnapshot
	trades  []orderbook.Trade
	result  *service.Result
	changed chan struct{}
}

var _ service.Observer = (*Store)(nil)

func NewStore() *Store {
	return &Store{changed: make(chan struct{})}
}

func (s *Store) OnTick(snap metrics.BookSnapshot, trades []orderbook.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return
	}
	s.snaps = append(s.snaps, snap)
	s.trades = append(s.trades, trades...)
	s.notify()
}

// Publish marks the run finished. Snapshots already streamed stay as they
// were; a store that never observed the run takes the kept snapshots.
func (s *Store) Publish(res *service.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	if len(s.snaps) == 0 {
		s.snaps = append(s.snaps, res.Snapshots...)
	}
	s.trades = res.Trades
	s.notify()
}

func (s *Store) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Store) Result() *service.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Trades pages through the trade log; total is the log length.
func (s *Store) Trades(offset, limit int) (page []orderbook.Trade, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = len(s.trades)
	if offset >= total {
		return nil, total
	}
	end := min(offset+limit, total)
	return append([]orderbook.Trade(nil), s.trades[offset:end]...), total
}

// since returns the snapshots from cursor on, whether the run is over, and
// a channel closed on the next change.
func (s *Store) since(cursor int) ([]metrics.BookSnapshot, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []metrics.BookSnapshot
	if cursor < len(s.snaps) {
		out = append(out, s.snaps[cursor:]...)
	}
	return out, s.result != nil, s.changed
}
