package strategy

import (
	"math"
	"time"

	"lobsim/domain/agent"
	"lobsim/domain/event"
	"lobsim/domain/orderbook"
)

// MakerConfig prices are in book units.
type MakerConfig struct {
	// Spread is the full quoted width around the reservation price.
	Spread int64
	Size   int64
	// InventoryLimit stops quoting the side that would grow the position
	// once |inventory| reaches it.
	InventoryLimit int64
	// Gamma shifts both quotes by -Gamma ticks per unit of inventory.
	Gamma    float64
	Interval time.Duration
	Tick     int64
}

type quote struct {
	id        uint64
	remaining int64
}

// Maker keeps one bid and one ask around the mid, skewed against its
// inventory, and refreshes them every Interval.
type Maker struct {
	id   string
	acct *agent.Account
	cfg  MakerConfig

	started bool
	nextRef uint64
	quotes  []quote // resting, oldest first
}

var _ agent.Agent = (*Maker)(nil)

const refreshTag = 1

func NewMaker(id string, acct *agent.Account, cfg MakerConfig) *Maker {
	if cfg.Tick <= 0 {
		cfg.Tick = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	return &Maker{id: id, acct: acct, cfg: cfg}
}

func (m *Maker) ID() string              { return m.id }
func (m *Maker) Account() *agent.Account { return m.acct }

// Resting lists the ids of the maker's live quotes.
func (m *Maker) Resting() []uint64 {
	ids := make([]uint64, len(m.quotes))
	for i, q := range m.quotes {
		ids[i] = q.id
	}
	return ids
}

func (m *Maker) Act(env agent.Env) []event.Event {
	due := !m.started
	for _, tm := range env.Due {
		if tm.Tag == refreshTag {
			due = true
		}
	}
	if !due {
		return nil
	}
	m.started = true
	env.Timers.Schedule(env.Window.Start+m.cfg.Interval, refreshTag)

	out := make([]event.Event, 0, len(m.quotes)+2)
	for _, q := range m.quotes {
		ev := event.CancelOrder(q.id)
		ev.At = env.Window.Start
		out = append(out, ev)
	}

	bid, ask, ok := m.Quotes(env.Book.Quote)
	if !ok {
		return out
	}
	inv := m.acct.Inventory()
	if m.cfg.InventoryLimit <= 0 || inv < m.cfg.InventoryLimit {
		out = append(out, m.post(orderbook.Bid, bid, env.Window.Start))
	}
	if m.cfg.InventoryLimit <= 0 || inv > -m.cfg.InventoryLimit {
		out = append(out, m.post(orderbook.Ask, ask, env.Window.Start))
	}
	return out
}

// Quotes prices a bid and an ask for the current inventory. It needs a
// two-sided book.
func (m *Maker) Quotes(top orderbook.Quote) (bid, ask int64, ok bool) {
	mid, ok := top.Mid()
	if !ok {
		return 0, 0, false
	}
	tick := float64(m.cfg.Tick)
	reservation := mid - m.cfg.Gamma*float64(m.acct.Inventory())*tick
	half := float64(m.cfg.Spread) / 2

	bid = int64(math.Floor((reservation-half)/tick)) * m.cfg.Tick
	ask = int64(math.Ceil((reservation+half)/tick)) * m.cfg.Tick
	if ask <= bid {
		ask = bid + m.cfg.Tick
	}
	if bid < m.cfg.Tick {
		bid = m.cfg.Tick
		ask = max(ask, bid+m.cfg.Tick)
	}
	return bid, ask, true
}

func (m *Maker) post(side orderbook.Side, price int64, at time.Duration) event.Event {
	m.nextRef++
	ev := event.Limit(side, price, m.cfg.Size)
	ev.At = at
	ev.Ref = m.nextRef
	return ev
}

func (m *Maker) OnAck(a agent.Ack) {
	switch a.Kind {
	case event.SubmitLimit:
		if a.Err == nil && a.Rested > 0 {
			m.quotes = append(m.quotes, quote{id: a.OrderID, remaining: a.Rested})
		}
	case event.Cancel:
		m.drop(a.OrderID)
	}
}

func (m *Maker) OnFill(f agent.Fill) {
	if !f.Maker {
		return
	}
	for i := range m.quotes {
		if m.quotes[i].id == f.OrderID {
			m.quotes[i].remaining -= f.Qty
			if m.quotes[i].remaining <= 0 {
				m.drop(f.OrderID)
			}
			return
		}
	}
}

func (m *Maker) drop(id uint64) {
	for i, q := range m.quotes {
		if q.id == id {
			m.quotes = append(m.quotes[:i], m.quotes[i+1:]...)
			return
		}
	}
}
