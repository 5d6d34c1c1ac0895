package strategy

import (
	"time"

	"lobsim/domain/agent"
	"lobsim/domain/event"
	"lobsim/domain/orderbook"
	"lobsim/domain/scheduler"
)

// State of a parent order.
type State uint8

const (
	Pending State = iota
	PartiallyExecuted
	Complete
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyExecuted:
		return "partially-executed"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParentSpec describes a parent order to work. CancelAt of zero means the
// parent runs to completion.
type ParentSpec struct {
	Start    time.Duration
	Side     orderbook.Side
	Qty      int64
	Schedule Schedule
	CancelAt time.Duration
}

// Parent is the live state of one parent order.
type Parent struct {
	Spec     ParentSpec
	State    State
	Created  time.Duration
	RefPrice int64
	Slices   []Slice
	Sent     int
	Acked    int
	Filled   int64

	created bool
	timers  map[int]scheduler.TimerID // slice index → pending timer
}

// Shortfall is the quantity the parent did not get.
func (p *Parent) Shortfall() int64 { return p.Spec.Qty - p.Filled }

func (p *Parent) done() bool { return p.State == Complete || p.State == Cancelled }

// Taker works parent orders with market child orders. The slippage
// benchmark is the opposite touch when the parent is created.
type Taker struct {
	id      string
	acct    *agent.Account
	parents []*Parent
}

var _ agent.Agent = (*Taker)(nil)

func NewTaker(id string, acct *agent.Account, specs ...ParentSpec) *Taker {
	t := &Taker{id: id, acct: acct}
	for _, s := range specs {
		if s.Schedule == nil {
			s.Schedule = Block{}
		}
		t.parents = append(t.parents, &Parent{Spec: s})
	}
	return t
}

func (t *Taker) ID() string              { return t.id }
func (t *Taker) Account() *agent.Account { return t.acct }

// Parents exposes the parent orders for reporting.
func (t *Taker) Parents() []*Parent { return t.parents }

func (t *Taker) Act(env agent.Env) []event.Event {
	var out []event.Event

	for i, p := range t.parents {
		if !p.created && p.Spec.Start < env.Window.End {
			out = append(out, t.create(i, p, env)...)
		}
	}

	for _, p := range t.parents {
		if p.Spec.CancelAt > 0 && p.Spec.CancelAt < env.Window.End && p.created && !p.done() {
			t.cancel(p, env.Timers)
		}
	}

	for _, tm := range env.Due {
		pi, si := untag(tm.Tag)
		if pi >= len(t.parents) {
			continue
		}
		p := t.parents[pi]
		delete(p.timers, si)
		if p.done() {
			continue
		}
		out = append(out, t.child(pi, si, tm.At))
	}
	return out
}

func (t *Taker) create(pi int, p *Parent, env agent.Env) []event.Event {
	p.created = true
	p.Created = max(p.Spec.Start, env.Window.Start)
	p.RefPrice = reference(p.Spec.Side, env.Book.Quote)
	p.Slices = p.Spec.Schedule.Slices(p.Created, p.Spec.Qty, env.Rand)
	p.timers = make(map[int]scheduler.TimerID)

	var now []event.Event
	for si, s := range p.Slices {
		if s.At < env.Window.End {
			now = append(now, t.child(pi, si, env.Window.Clamp(s.At)))
			continue
		}
		p.timers[si] = env.Timers.Schedule(s.At, tag(pi, si))
	}
	if len(p.Slices) == 0 {
		p.State = Complete
	}
	return now
}

func (t *Taker) child(pi, si int, at time.Duration) event.Event {
	p := t.parents[pi]
	p.Sent++
	ev := event.Market(p.Spec.Side, p.Slices[si].Qty)
	ev.At = at
	ev.Ref = tag(pi, si)
	ev.RefPrice = p.RefPrice
	return ev
}

func (t *Taker) cancel(p *Parent, timers agent.Timers) {
	for si, id := range p.timers {
		timers.Cancel(id)
		delete(p.timers, si)
	}
	p.State = Cancelled
}

func (t *Taker) OnAck(a agent.Ack) {
	pi, _ := untag(a.Ref)
	if pi >= len(t.parents) {
		return
	}
	p := t.parents[pi]
	p.Acked++
	if p.State != Cancelled && p.Acked == len(p.Slices) {
		p.State = Complete
	}
}

func (t *Taker) OnFill(f agent.Fill) {
	pi, _ := untag(f.Ref)
	if pi >= len(t.parents) {
		return
	}
	p := t.parents[pi]
	p.Filled += f.Qty
	if p.State == Pending {
		p.State = PartiallyExecuted
	}
}

// reference is the price a buyer (seller) would pay (receive) right now.
func reference(side orderbook.Side, q orderbook.Quote) int64 {
	if side == orderbook.Bid && q.HasAsk {
		return q.Ask
	}
	if side == orderbook.Ask && q.HasBid {
		return q.Bid
	}
	if mid, ok := q.Mid(); ok {
		return int64(mid)
	}
	if q.HasBid {
		return q.Bid
	}
	return q.Ask
}

func tag(parent, slice int) uint64 { return uint64(parent)<<32 | uint64(slice) }

func untag(v uint64) (parent, slice int) { return int(v >> 32), int(v & 0xffffffff) }
