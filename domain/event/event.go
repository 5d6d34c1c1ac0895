// Package event defines the instructions the order-flow generator and the
// agents hand to the simulator each tick.
package event

import (
	"time"

	"lobsim/domain/orderbook"
)

type Kind uint8

const (
	SubmitLimit Kind = iota
	SubmitMarket
	Cancel
)

func (k Kind) String() string {
	switch k {
	case SubmitLimit:
		return "limit"
	case SubmitMarket:
		return "market"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is one order instruction. The simulator assigns order ids, so an
// event never carries one for a submission.
type Event struct {
	Kind  Kind
	Side  orderbook.Side
	Price int64 // limit price in units
	Qty   int64

	// Target is the order id a Cancel removes. Zero asks the simulator to
	// pick one of the owner's resting orders using Pick in [0,1).
	Target uint64
	Pick   float64

	// At is the arrival time inside the tick window.
	At time.Duration

	Owner string
	// Ref is the owner's own reference, echoed back in acks and fills.
	Ref uint64
	// RefPrice is the benchmark used for slippage, in units. Zero for none.
	RefPrice int64
}

func Limit(side orderbook.Side, price, qty int64) Event {
	return Event{Kind: SubmitLimit, Side: side, Price: price, Qty: qty}
}

func Market(side orderbook.Side, qty int64) Event {
	return Event{Kind: SubmitMarket, Side: side, Qty: qty}
}

func CancelOrder(id uint64) Event {
	return Event{Kind: Cancel, Target: id}
}

// CancelAny cancels a resting order of the owner chosen by pick.
func CancelAny(pick float64) Event {
	return Event{Kind: Cancel, Pick: pick}
}
