package agent

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"lobsim/domain/orderbook"
)

// CostMethod selects how realized PnL is measured.
type CostMethod uint8

const (
	AverageCost CostMethod = iota
	FIFO
)

func (m CostMethod) String() string {
	if m == FIFO {
		return "fifo"
	}
	return "average"
}

func ParseCostMethod(s string) (CostMethod, error) {
	switch s {
	case "", "average", "avg", "average-cost":
		return AverageCost, nil
	case "fifo":
		return FIFO, nil
	}
	return AverageCost, errors.Newf("agent: unknown cost method %q", s)
}

type lot struct {
	qty   int64 // signed
	price decimal.Decimal
}

// Account holds an agent's cash and signed inventory. Prices passed in are
// decimal; the simulator converts from book units.
type Account struct {
	id          string
	method      CostMethod
	initialCash decimal.Decimal
	cash        decimal.Decimal
	inventory   int64
	realized    decimal.Decimal

	avg  decimal.Decimal // AverageCost basis
	lots []lot           // FIFO basis, oldest first

	fills  int
	volume int64
}

// NewAccount opens an account. A non-zero inventory is booked at entry.
func NewAccount(id string, cash decimal.Decimal, inventory int64, entry decimal.Decimal, method CostMethod) *Account {
	a := &Account{id: id, method: method, initialCash: cash, cash: cash}
	if inventory != 0 {
		a.open(inventory, entry)
	}
	return a
}

func (a *Account) ID() string                   { return a.id }
func (a *Account) Method() CostMethod           { return a.method }
func (a *Account) Cash() decimal.Decimal        { return a.cash }
func (a *Account) InitialCash() decimal.Decimal { return a.initialCash }
func (a *Account) Inventory() int64             { return a.inventory }
func (a *Account) Realized() decimal.Decimal    { return a.realized }
func (a *Account) Fills() int                   { return a.fills }
func (a *Account) Volume() int64                { return a.volume }

// Apply books one execution: a buy pays price×qty and adds inventory, a
// sell does the reverse.
func (a *Account) Apply(side orderbook.Side, price decimal.Decimal, qty int64) {
	if qty <= 0 {
		return
	}
	notional := price.Mul(decimal.NewFromInt(qty))
	if side == orderbook.Bid {
		a.cash = a.cash.Sub(notional)
	} else {
		a.cash = a.cash.Add(notional)
	}
	a.fills++
	a.volume += qty

	d := side.Sign() * qty
	if a.inventory == 0 || sameSign(a.inventory, d) {
		a.open(d, price)
		return
	}

	closing := min(abs(d), abs(a.inventory))
	if a.method == FIFO {
		a.closeFIFO(closing, price)
	} else {
		a.realized = a.realized.Add(pnl(a.inventory, closing, a.avg, price))
		a.inventory += sign(d) * closing
		if a.inventory == 0 {
			a.avg = decimal.Zero
		}
	}

	if rest := abs(d) - closing; rest > 0 {
		a.open(sign(d)*rest, price)
	}
}

// AvgEntry is the cost basis per unit of the open position.
func (a *Account) AvgEntry() decimal.Decimal {
	if a.inventory == 0 {
		return decimal.Zero
	}
	if a.method == AverageCost {
		return a.avg
	}
	total := decimal.Zero
	for _, l := range a.lots {
		total = total.Add(l.price.Mul(decimal.NewFromInt(abs(l.qty))))
	}
	return total.Div(decimal.NewFromInt(abs(a.inventory)))
}

// Unrealized is inventory × (mark − average entry).
func (a *Account) Unrealized(mark decimal.Decimal) decimal.Decimal {
	if a.inventory == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(a.inventory).Mul(mark.Sub(a.AvgEntry()))
}

// Equity is cash plus inventory marked at mark.
func (a *Account) Equity(mark decimal.Decimal) decimal.Decimal {
	return a.cash.Add(decimal.NewFromInt(a.inventory).Mul(mark))
}

func (a *Account) open(d int64, price decimal.Decimal) {
	if a.method == FIFO {
		a.lots = append(a.lots, lot{qty: d, price: price})
	} else {
		total := abs(a.inventory) + abs(d)
		a.avg = a.avg.Mul(decimal.NewFromInt(abs(a.inventory))).
			Add(price.Mul(decimal.NewFromInt(abs(d)))).
			Div(decimal.NewFromInt(total))
	}
	a.inventory += d
}

func (a *Account) closeFIFO(qty int64, price decimal.Decimal) {
	for qty > 0 && len(a.lots) > 0 {
		head := &a.lots[0]
		take := min(qty, abs(head.qty))
		a.realized = a.realized.Add(pnl(head.qty, take, head.price, price))
		head.qty -= sign(head.qty) * take
		a.inventory -= sign(a.inventory) * take
		qty -= take
		if head.qty == 0 {
			a.lots = a.lots[1:]
		}
	}
}

// pnl realizes qty units of a position with the given sign.
func pnl(position, qty int64, entry, exit decimal.Decimal) decimal.Decimal {
	per := exit.Sub(entry)
	if position < 0 {
		per = per.Neg()
	}
	return per.Mul(decimal.NewFromInt(qty))
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
