package orderbook

import "time"

type Side uint8
type OrderType uint8
type Status uint8

const (
	Bid Side = iota
	Ask
)

const (
	Limit OrderType = iota
	Market
	Cancel
)

const (
	Active Status = iota
	Inactive
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "buy"
	case Ask:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == Bid {
		return 1
	}
	return -1
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Order is a pure domain entity. Prices are integer units (one unit is the
// smallest price increment the run can express); Price is zero for market
// orders. Only Filled changes once the order is accepted.
type Order struct {
	ID     uint64
	Side   Side
	Type   OrderType
	Price  int64
	Qty    int64
	Filled int64
	Time   time.Duration
	Owner  string
	Status Status

	level *PriceLevel
	next  *Order
	prev  *Order
}

func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Read-only traversal helpers
func (o *Order) Next() *Order {
	return o.next
}

func (o *Order) Level() *PriceLevel {
	return o.level
}

// detached returns a copy that carries no queue links.
func (o *Order) detached() Order {
	c := *o
	c.level, c.next, c.prev = nil, nil, nil
	return c
}

// Trade is one execution between a resting (maker) order and an incoming
// (taker) order. It always prints at the maker's price.
type Trade struct {
	ID           uint64        `json:"id"`
	Price        int64         `json:"price"`
	Qty          int64         `json:"qty"`
	Time         time.Duration `json:"time"`
	MakerOrderID uint64        `json:"maker_order_id"`
	TakerOrderID uint64        `json:"taker_order_id"`
	MakerOwner   string        `json:"maker_owner,omitempty"`
	TakerOwner   string        `json:"taker_owner,omitempty"`
	Aggressor    Side          `json:"aggressor"`
}

func (t Trade) BuyOrderID() uint64 {
	if t.Aggressor == Bid {
		return t.TakerOrderID
	}
	return t.MakerOrderID
}

func (t Trade) SellOrderID() uint64 {
	if t.Aggressor == Ask {
		return t.TakerOrderID
	}
	return t.MakerOrderID
}

// Execution reports what happened to an incoming order.
type Execution struct {
	OrderID   uint64
	Requested int64
	Filled    int64
	// Rested is the quantity left resting on the book.
	Rested int64
	// Dropped is the quantity discarded: unfilled market remainder or a
	// limit remainder blocked by self-trade prevention.
	Dropped int64
	Trades  []Trade
}

// Shortfall is the requested quantity that neither traded nor rested.
func (e Execution) Shortfall() int64 {
	return e.Requested - e.Filled - e.Rested
}
