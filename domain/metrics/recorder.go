// Package metrics records per-tick book snapshots and per-fill agent
// records, and summarizes a run.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"lobsim/domain/agent"
	"lobsim/domain/orderbook"
	"lobsim/domain/pricing"
	"lobsim/domain/scheduler"
)

// BookSnapshot is the market state after one tick. Mid and Spread are only
// meaningful when both HasBid and HasAsk are set.
type BookSnapshot struct {
	Tick      int64         `json:"tick"`
	Time      time.Duration `json:"time"`
	BestBid   int64         `json:"best_bid"`
	BestAsk   int64         `json:"best_ask"`
	HasBid    bool          `json:"has_bid"`
	HasAsk    bool          `json:"has_ask"`
	Mid       float64       `json:"mid"`
	Spread    int64         `json:"spread"`
	BidSize   int64         `json:"bid_size"`
	AskSize   int64         `json:"ask_size"`
	BidLevels int           `json:"bid_levels"`
	AskLevels int           `json:"ask_levels"`
	BidOrders int           `json:"bid_orders"`
	AskOrders int           `json:"ask_orders"`
	Trades    int           `json:"trades"`
	Volume    int64         `json:"volume"`
}

func (s BookSnapshot) Quote() orderbook.Quote {
	return orderbook.Quote{Bid: s.BestBid, Ask: s.BestAsk, HasBid: s.HasBid, HasAsk: s.HasAsk}
}

// AgentRecord is an agent's state right after one of its fills.
type AgentRecord struct {
	Tick          int64           `json:"tick"`
	Time          time.Duration   `json:"time"`
	Agent         string          `json:"agent"`
	TradeID       uint64          `json:"trade_id"`
	OrderID       uint64          `json:"order_id"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Qty           int64           `json:"qty"`
	Maker         bool            `json:"maker"`
	Cash          decimal.Decimal `json:"cash"`
	Inventory     int64           `json:"inventory"`
	AvgEntry      decimal.Decimal `json:"avg_entry"`
	Mark          decimal.Decimal `json:"mark"`
	Realized      decimal.Decimal `json:"realized_pnl"`
	Unrealized    decimal.Decimal `json:"unrealized_pnl"`
	Total         decimal.Decimal `json:"total_pnl"`
	Equity        decimal.Decimal `json:"equity"`
	Slippage      decimal.Decimal `json:"slippage"`
	TotalSlippage decimal.Decimal `json:"total_slippage"`
	AvgSlippage   decimal.Decimal `json:"avg_slippage"`
}

type slipState struct {
	total decimal.Decimal
	qty   int64
}

// Recorder is owned by the simulation loop and is not safe for concurrent
// use.
type Recorder struct {
	px    pricing.Scale
	every int64

	snapshots []BookSnapshot
	records   []AgentRecord
	slip      map[string]*slipState

	tickTrades int
	tickVolume int64
	trades     int
	volume     int64
	lastMark   decimal.Decimal
}

// NewRecorder keeps one snapshot every `every` ticks (1 keeps all).
func NewRecorder(px pricing.Scale, every int64) *Recorder {
	if every < 1 {
		every = 1
	}
	return &Recorder{px: px, every: every, slip: make(map[string]*slipState)}
}

// ObserveTrade counts a trade toward the next snapshot and the summary.
func (r *Recorder) ObserveTrade(tr orderbook.Trade) {
	r.tickTrades++
	r.tickVolume += tr.Qty
	r.trades++
	r.volume += tr.Qty
}

// Capture turns the end-of-tick book into a snapshot. Counters cover every
// trade since the previous kept snapshot.
func (r *Recorder) Capture(w scheduler.Window, book orderbook.Snapshot) (BookSnapshot, bool) {
	s := BookSnapshot{
		Tick:      w.Index,
		Time:      w.End,
		BestBid:   book.Bid,
		BestAsk:   book.Ask,
		HasBid:    book.HasBid,
		HasAsk:    book.HasAsk,
		BidSize:   book.BidQty,
		AskSize:   book.AskQty,
		BidLevels: book.BidLevels,
		AskLevels: book.AskLevels,
		BidOrders: book.BidOrders,
		AskOrders: book.AskOrders,
		Trades:    r.tickTrades,
		Volume:    r.tickVolume,
	}
	if mid, ok := book.Mid(); ok {
		s.Mid = mid
		s.Spread = book.Ask - book.Bid
		r.lastMark = r.px.FromFloat(mid)
	}
	if w.Index%r.every != 0 {
		return s, false
	}
	r.snapshots = append(r.snapshots, s)
	r.tickTrades, r.tickVolume = 0, 0
	return s, true
}

// Mark is the price open inventory is valued at: the mid when the book is
// two-sided, otherwise the last known mid, otherwise fallback.
func (r *Recorder) Mark(q orderbook.Quote, fallback decimal.Decimal) decimal.Decimal {
	if mid, ok := q.Mid(); ok {
		r.lastMark = r.px.FromFloat(mid)
		return r.lastMark
	}
	if !r.lastMark.IsZero() {
		return r.lastMark
	}
	return fallback
}

// RecordFill appends the agent's state after f. The account must already
// include the fill.
func (r *Recorder) RecordFill(w scheduler.Window, acct *agent.Account, f agent.Fill, mark decimal.Decimal) AgentRecord {
	price := r.px.ToDecimal(f.Price)
	st := r.slip[acct.ID()]
	if st == nil {
		st = &slipState{}
		r.slip[acct.ID()] = st
	}

	slip := decimal.Zero
	if f.RefPrice > 0 {
		slip = Slippage(f.Side, price, r.px.ToDecimal(f.RefPrice), f.Qty)
		st.total = st.total.Add(slip)
		st.qty += f.Qty
	}
	avgSlip := decimal.Zero
	if st.qty > 0 {
		avgSlip = st.total.Div(decimal.NewFromInt(st.qty))
	}

	unreal := acct.Unrealized(mark)
	rec := AgentRecord{
		Tick:          w.Index,
		Time:          f.Time,
		Agent:         acct.ID(),
		TradeID:       f.TradeID,
		OrderID:       f.OrderID,
		Side:          f.Side.String(),
		Price:         price,
		Qty:           f.Qty,
		Maker:         f.Maker,
		Cash:          acct.Cash(),
		Inventory:     acct.Inventory(),
		AvgEntry:      acct.AvgEntry(),
		Mark:          mark,
		Realized:      acct.Realized(),
		Unrealized:    unreal,
		Total:         acct.Realized().Add(unreal),
		Equity:        acct.Equity(mark),
		Slippage:      slip,
		TotalSlippage: st.total,
		AvgSlippage:   avgSlip,
	}
	r.records = append(r.records, rec)
	return rec
}

// Slippage is the cost of executing at price against ref: positive when a
// buy pays more or a sell receives less than the reference.
func Slippage(side orderbook.Side, price, ref decimal.Decimal, qty int64) decimal.Decimal {
	diff := price.Sub(ref)
	if side == orderbook.Ask {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(qty))
}

func (r *Recorder) Snapshots() []BookSnapshot { return r.snapshots }

func (r *Recorder) AgentRecords() []AgentRecord { return r.records }

func (r *Recorder) TradeCount() int { return r.trades }

func (r *Recorder) Volume() int64 { return r.volume }
