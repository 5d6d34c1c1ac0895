package orderbook

import "github.com/cockroachdb/errors"

// LevelView is an aggregate read of one price level.
type LevelView struct {
	Price  int64 `json:"price"`
	Qty    int64 `json:"qty"`
	Orders int   `json:"orders"`
}

// Quote is the top of book. Bid and Ask are meaningful only when the
// matching Has flag is set.
type Quote struct {
	Bid    int64
	Ask    int64
	HasBid bool
	HasAsk bool
}

// Two reports whether both sides are present.
func (q Quote) Two() bool { return q.HasBid && q.HasAsk }

// Mid is (bid+ask)/2 in price units.
func (q Quote) Mid() (float64, bool) {
	if !q.Two() {
		return 0, false
	}
	return float64(q.Bid+q.Ask) / 2, true
}

// Snapshot is a consistent copy of the book, safe to hand to agents and
// observers. Bids are best first (descending), asks best first (ascending).
type Snapshot struct {
	Quote
	Bids      []LevelView
	Asks      []LevelView
	BidQty    int64
	AskQty    int64
	BidLevels int
	AskLevels int
	BidOrders int
	AskOrders int
}

func (b *OrderBook) BestBid() (int64, error) {
	lvl := b.Bids.MaxLevel()
	if lvl == nil {
		return 0, errors.Wrap(ErrEmptyBookSide, "no bids")
	}
	return lvl.Price, nil
}

func (b *OrderBook) BestAsk() (int64, error) {
	lvl := b.Asks.MinLevel()
	if lvl == nil {
		return 0, errors.Wrap(ErrEmptyBookSide, "no asks")
	}
	return lvl.Price, nil
}

// MidPrice is (best bid + best ask) / 2 in price units.
func (b *OrderBook) MidPrice() (float64, error) {
	bid, err := b.BestBid()
	if err != nil {
		return 0, err
	}
	ask, err := b.BestAsk()
	if err != nil {
		return 0, err
	}
	return float64(bid+ask) / 2, nil
}

func (b *OrderBook) Spread() (int64, error) {
	bid, err := b.BestBid()
	if err != nil {
		return 0, err
	}
	ask, err := b.BestAsk()
	if err != nil {
		return 0, err
	}
	return ask - bid, nil
}

func (b *OrderBook) Top() Quote {
	var q Quote
	if lvl := b.Bids.MaxLevel(); lvl != nil {
		q.Bid, q.HasBid = lvl.Price, true
	}
	if lvl := b.Asks.MinLevel(); lvl != nil {
		q.Ask, q.HasAsk = lvl.Price, true
	}
	return q
}

// Depth returns up to n levels of one side, best first. n <= 0 means all.
func (b *OrderBook) Depth(s Side, n int) []LevelView {
	var out []LevelView
	b.walk(s, func(lvl *PriceLevel) bool {
		out = append(out, LevelView{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
		return n <= 0 || len(out) < n
	})
	return out
}

// Snapshot copies the top depth levels per side (all when depth <= 0) and
// the aggregates of the whole book.
func (b *OrderBook) Snapshot(depth int) Snapshot {
	s := Snapshot{
		Quote:     b.Top(),
		Bids:      b.Depth(Bid, depth),
		Asks:      b.Depth(Ask, depth),
		BidLevels: b.Bids.Size(),
		AskLevels: b.Asks.Size(),
	}
	b.Bids.ForEachAscending(func(lvl *PriceLevel) bool {
		s.BidQty += lvl.TotalQty
		s.BidOrders += lvl.OrderCount
		return true
	})
	b.Asks.ForEachAscending(func(lvl *PriceLevel) bool {
		s.AskQty += lvl.TotalQty
		s.AskOrders += lvl.OrderCount
		return true
	})
	return s
}

// RestingOrderIDs lists resting orders of owner in price-time order, bids
// first. An empty owner selects background flow.
func (b *OrderBook) RestingOrderIDs(owner string) []uint64 {
	var ids []uint64
	collect := func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; o = o.next {
			if o.Owner == owner {
				ids = append(ids, o.ID)
			}
		}
		return true
	}
	b.walk(Bid, collect)
	b.walk(Ask, collect)
	return ids
}

// ---- traversal helpers ----

// walk visits the levels of one side best first.
func (b *OrderBook) walk(s Side, fn func(*PriceLevel) bool) {
	if s == Bid {
		b.Bids.ForEachDescending(fn)
		return
	}
	b.Asks.ForEachAscending(fn)
}

func (b *OrderBook) BidsWalk(fn func(*PriceLevel)) {
	b.walk(Bid, func(lvl *PriceLevel) bool { fn(lvl); return true })
}

func (b *OrderBook) AsksWalk(fn func(*PriceLevel)) {
	b.walk(Ask, func(lvl *PriceLevel) bool { fn(lvl); return true })
}
