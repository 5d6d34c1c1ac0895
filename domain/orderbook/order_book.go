package orderbook

// SelfTradePolicy decides what happens when an incoming order would trade
// against a resting order of the same owner.
type SelfTradePolicy uint8

const (
	// SelfTradeAllow lets an owner trade with itself.
	SelfTradeAllow SelfTradePolicy = iota
	// SelfTradeSkip passes over the owner's resting orders. A remainder that
	// would still cross them is dropped rather than rested.
	SelfTradeSkip
)

func (p SelfTradePolicy) String() string {
	if p == SelfTradeSkip {
		return "skip"
	}
	return "allow"
}

// Allocator hands out resting order nodes. memory.Pool satisfies it.
type Allocator interface {
	Get() *Order
	Put(*Order)
}

type heapAlloc struct{}

func (heapAlloc) Get() *Order  { return new(Order) }
func (heapAlloc) Put(_ *Order) {}

type Config struct {
	// TickSize in price units. Limit prices must be a multiple of it.
	TickSize  int64
	SelfTrade SelfTradePolicy
	// VerifyIndex walks every level after each matching pass to check the
	// id index against the queues. Expensive; meant for tests and audits.
	VerifyIndex bool
	Alloc       Allocator
}

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	Bids *RBTree
	Asks *RBTree

	index    map[uint64]*Order
	cfg      Config
	alloc    Allocator
	tradeSeq uint64
}

func NewOrderBook(cfg Config) *OrderBook {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 1
	}
	alloc := cfg.Alloc
	if alloc == nil {
		alloc = heapAlloc{}
	}
	return &OrderBook{
		Bids:  NewRBTree(),
		Asks:  NewRBTree(),
		index: make(map[uint64]*Order),
		cfg:   cfg,
		alloc: alloc,
	}
}

func (b *OrderBook) TickSize() int64 { return b.cfg.TickSize }

// Len is the number of resting orders.
func (b *OrderBook) Len() int { return len(b.index) }

// TradeSeq is the id of the last trade printed.
func (b *OrderBook) TradeSeq() uint64 { return b.tradeSeq }

// SubmitLimit matches o against the opposite side and rests any remainder at
// o.Price.
func (b *OrderBook) SubmitLimit(o Order) (Execution, error) {
	o.Type = Limit
	if err := b.validate(&o); err != nil {
		return Execution{}, err
	}
	if o.Price <= 0 {
		return Execution{}, invalidf("order %d: limit price %d must be positive", o.ID, o.Price)
	}
	if o.Price%b.cfg.TickSize != 0 {
		return Execution{}, invalidf("order %d: price %d is not a multiple of tick %d", o.ID, o.Price, b.cfg.TickSize)
	}

	exec, blocked := b.match(&o)
	if rem := o.Remaining(); rem > 0 {
		if blocked && b.crosses(&o) {
			exec.Dropped = rem
		} else {
			b.rest(&o)
			exec.Rested = rem
		}
	}
	return exec, b.verify()
}

// SubmitMarket matches o with no price limit. The remainder never rests.
func (b *OrderBook) SubmitMarket(o Order) (Execution, error) {
	o.Type = Market
	o.Price = 0
	if err := b.validate(&o); err != nil {
		return Execution{}, err
	}

	exec, _ := b.match(&o)
	exec.Dropped = o.Remaining()
	return exec, b.verify()
}

// Cancel removes a resting order. Unknown or already resolved ids return
// false and leave the book untouched.
func (b *OrderBook) Cancel(id uint64) bool {
	o, ok := b.index[id]
	if !ok {
		return false
	}
	b.retire(o)
	return true
}

// Lookup returns a copy of a resting order.
func (b *OrderBook) Lookup(id uint64) (Order, bool) {
	o, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	return o.detached(), true
}

func (b *OrderBook) validate(o *Order) error {
	if o.Side != Bid && o.Side != Ask {
		return invalidf("order %d: unknown side %d", o.ID, o.Side)
	}
	if o.Qty <= 0 {
		return invalidf("order %d: quantity %d must be positive", o.ID, o.Qty)
	}
	if o.Filled != 0 {
		return invalidf("order %d: already has %d filled", o.ID, o.Filled)
	}
	if _, dup := b.index[o.ID]; dup {
		return invalidf("order %d: id already resting", o.ID)
	}
	o.Status = Active
	return nil
}

func (b *OrderBook) tree(s Side) *RBTree {
	if s == Bid {
		return b.Bids
	}
	return b.Asks
}

// best returns the level an incoming order of side s trades against first.
func (b *OrderBook) best(s Side) *PriceLevel {
	if s == Bid {
		return b.Asks.MinLevel()
	}
	return b.Bids.MaxLevel()
}

// after returns the next level an incoming order of side s may trade
// against once the level at price is done.
func (b *OrderBook) after(s Side, price int64) *PriceLevel {
	if s == Bid {
		return b.Asks.Successor(price)
	}
	return b.Bids.Predecessor(price)
}

func marketable(o *Order, price int64) bool {
	if o.Type == Market {
		return true
	}
	if o.Side == Bid {
		return price <= o.Price
	}
	return price >= o.Price
}

// crosses reports whether a limit order would trade against the current
// best opposite level.
func (b *OrderBook) crosses(o *Order) bool {
	lvl := b.best(o.Side)
	return lvl != nil && marketable(o, lvl.Price)
}

// match walks the opposite side in price-time order. blocked reports that
// self-trade prevention skipped at least one resting order.
func (b *OrderBook) match(o *Order) (exec Execution, blocked bool) {
	exec.OrderID = o.ID
	exec.Requested = o.Qty

	skip := b.cfg.SelfTrade == SelfTradeSkip && o.Owner != ""
	lvl := b.best(o.Side)
	for lvl != nil && o.Remaining() > 0 && marketable(o, lvl.Price) {
		price := lvl.Price
		for n := lvl.head; n != nil && o.Remaining() > 0; {
			next := n.next
			if skip && n.Owner == o.Owner {
				blocked = true
				n = next
				continue
			}

			qty := min(o.Remaining(), n.Remaining())
			o.Filled += qty
			lvl.fill(n, qty)
			exec.Trades = append(exec.Trades, b.print(n, o, qty))

			if n.Remaining() == 0 {
				b.retire(n)
			}
			n = next
		}
		lvl = b.after(o.Side, price)
	}

	exec.Filled = o.Filled
	if o.Remaining() == 0 {
		o.Status = Inactive
	}
	return exec, blocked
}

func (b *OrderBook) print(maker, taker *Order, qty int64) Trade {
	b.tradeSeq++
	return Trade{
		ID:           b.tradeSeq,
		Price:        maker.Price,
		Qty:          qty,
		Time:         taker.Time,
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		MakerOwner:   maker.Owner,
		TakerOwner:   taker.Owner,
		Aggressor:    taker.Side,
	}
}

func (b *OrderBook) rest(o *Order) {
	n := b.alloc.Get()
	*n = *o
	n.level, n.next, n.prev = nil, nil, nil
	b.tree(n.Side).UpsertLevel(n.Price).Enqueue(n)
	b.index[n.ID] = n
}

// retire unlinks a resting node, drops its level when empty and hands the
// node back to the allocator.
func (b *OrderBook) retire(o *Order) {
	lvl := o.level
	lvl.unlink(o)
	if lvl.Empty() {
		b.tree(o.Side).DeleteLevel(lvl.Price)
	}
	delete(b.index, o.ID)
	o.Status = Inactive
	b.alloc.Put(o)
}

func (b *OrderBook) verify() error {
	if b.cfg.VerifyIndex {
		return b.CheckInvariants()
	}
	return b.checkUncrossed()
}
