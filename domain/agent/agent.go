// Package agent defines the capability set every trading strategy exposes
// to the simulator and the account each agent trades through.
package agent

import (
	"math/rand"
	"time"

	"lobsim/domain/event"
	"lobsim/domain/orderbook"
	"lobsim/domain/scheduler"
)

// Agent is the single interface the simulator drives. Act is called once
// per tick; OnAck and OnFill are delivered while the tick's events are
// applied.
type Agent interface {
	ID() string
	Account() *Account
	Act(env Env) []event.Event
	OnAck(Ack)
	OnFill(Fill)
}

// Timers lets an agent park future actions. The handle is scoped to the
// agent, so it can only cancel what it scheduled itself.
type Timers interface {
	Schedule(at time.Duration, tag uint64) scheduler.TimerID
	Cancel(id scheduler.TimerID) bool
}

// Env is everything an agent sees when it acts.
type Env struct {
	Window scheduler.Window
	Book   orderbook.Snapshot
	// Due holds this agent's timers that fell inside the window.
	Due    []scheduler.Timer
	Timers Timers
	Rand   *rand.Rand
}

// Ack reports the outcome of one event an agent emitted.
type Ack struct {
	Ref     uint64
	Kind    event.Kind
	OrderID uint64
	Time    time.Duration

	Requested int64
	Filled    int64
	Rested    int64
	// Cancelled is set when a cancel removed a resting order.
	Cancelled bool
	Err       error
}

// Fill is one execution on an agent's order, maker or taker side.
type Fill struct {
	TradeID  uint64
	OrderID  uint64
	Ref      uint64
	Side     orderbook.Side
	Price    int64
	Qty      int64
	Time     time.Duration
	Maker    bool
	RefPrice int64
}
