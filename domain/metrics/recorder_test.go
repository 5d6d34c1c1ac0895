package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/domain/agent"
	"lobsim/domain/orderbook"
	"lobsim/domain/pricing"
	"lobsim/domain/scheduler"
)

var cents = pricing.MustScale("0.01")

func win(i int64) scheduler.Window {
	return scheduler.Window{Index: i, Start: time.Duration(i) * time.Second, End: time.Duration(i+1) * time.Second}
}

func twoSided(bid, ask int64) orderbook.Snapshot {
	return orderbook.Snapshot{
		Quote:  orderbook.Quote{Bid: bid, Ask: ask, HasBid: true, HasAsk: true},
		BidQty: 10, AskQty: 12, BidLevels: 1, AskLevels: 2, BidOrders: 3, AskOrders: 4,
	}
}

func TestCaptureCountsTradesSincePreviousSnapshot(t *testing.T) {
	r := NewRecorder(cents, 1)
	r.ObserveTrade(orderbook.Trade{Qty: 3})
	r.ObserveTrade(orderbook.Trade{Qty: 4})

	s, kept := r.Capture(win(0), twoSided(9990, 10010))
	require.True(t, kept)
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, int64(7), s.Volume)
	assert.Equal(t, 10000.0, s.Mid)
	assert.Equal(t, int64(20), s.Spread)
	assert.Equal(t, 3, s.BidOrders)

	s, _ = r.Capture(win(1), twoSided(9990, 10010))
	assert.Zero(t, s.Trades)
	assert.Equal(t, 7, int(r.Volume()))
	assert.Len(t, r.Snapshots(), 2)
}

func TestCaptureOneSided(t *testing.T) {
	r := NewRecorder(cents, 1)
	s, _ := r.Capture(win(0), orderbook.Snapshot{Quote: orderbook.Quote{Bid: 100, HasBid: true}})
	assert.False(t, s.HasAsk)
	assert.Zero(t, s.Mid)
	assert.Zero(t, s.Spread)
}

func TestCaptureEveryN(t *testing.T) {
	r := NewRecorder(cents, 3)
	for i := int64(0); i < 7; i++ {
		r.ObserveTrade(orderbook.Trade{Qty: 1})
		r.Capture(win(i), twoSided(99, 101))
	}
	snaps := r.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, []int64{0, 3, 6}, []int64{snaps[0].Tick, snaps[1].Tick, snaps[2].Tick})
	assert.Equal(t, 3, snaps[1].Trades)
}

func TestSlippageSign(t *testing.T) {
	ref := decimal.RequireFromString("10.00")
	buy := Slippage(orderbook.Bid, decimal.RequireFromString("10.05"), ref, 10)
	sell := Slippage(orderbook.Ask, decimal.RequireFromString("9.95"), ref, 10)
	better := Slippage(orderbook.Bid, decimal.RequireFromString("9.98"), ref, 1)

	assert.Equal(t, "0.5", buy.String())
	assert.Equal(t, "0.5", sell.String())
	assert.Equal(t, "-0.02", better.String())
}

func TestRecordFill(t *testing.T) {
	r := NewRecorder(cents, 1)
	acct := agent.NewAccount("taker", decimal.NewFromInt(1000), 0, decimal.Zero, agent.AverageCost)

	f := agent.Fill{TradeID: 1, OrderID: 5, Side: orderbook.Bid, Price: 1005, Qty: 4, RefPrice: 1000}
	acct.Apply(f.Side, cents.ToDecimal(f.Price), f.Qty)
	rec := r.RecordFill(win(0), acct, f, decimal.RequireFromString("10.10"))

	assert.Equal(t, "taker", rec.Agent)
	assert.True(t, decimal.RequireFromString("959.8").Equal(rec.Cash))
	assert.Equal(t, int64(4), rec.Inventory)
	assert.True(t, decimal.RequireFromString("0.2").Equal(rec.Unrealized))
	assert.True(t, decimal.RequireFromString("0.2").Equal(rec.Slippage))
	assert.True(t, decimal.RequireFromString("0.05").Equal(rec.AvgSlippage))
	assert.True(t, decimal.RequireFromString("1000.2").Equal(rec.Equity))

	f2 := agent.Fill{TradeID: 2, OrderID: 6, Side: orderbook.Bid, Price: 1000, Qty: 4}
	acct.Apply(f2.Side, cents.ToDecimal(f2.Price), f2.Qty)
	rec = r.RecordFill(win(1), acct, f2, decimal.RequireFromString("10.00"))
	assert.True(t, rec.Slippage.IsZero(), "fills without a reference carry no slippage")
	assert.True(t, decimal.RequireFromString("0.2").Equal(rec.TotalSlippage))
	assert.Len(t, r.AgentRecords(), 2)
}

func TestMarkFallsBackToLastMid(t *testing.T) {
	r := NewRecorder(cents, 1)
	fallback := decimal.NewFromInt(7)
	assert.True(t, fallback.Equal(r.Mark(orderbook.Quote{}, fallback)))

	m := r.Mark(orderbook.Quote{Bid: 999, Ask: 1001, HasBid: true, HasAsk: true}, fallback)
	assert.Equal(t, "10", m.String())
	assert.Equal(t, "10", r.Mark(orderbook.Quote{Bid: 5, HasBid: true}, fallback).String())
}

func TestSummary(t *testing.T) {
	r := NewRecorder(cents, 1)
	mids := [][2]int64{{99, 101}, {109, 111}, {89, 91}, {99, 101}}
	for i, q := range mids {
		r.ObserveTrade(orderbook.Trade{Qty: 2})
		r.Capture(win(int64(i)), twoSided(q[0], q[1]))
	}
	r.Capture(win(4), orderbook.Snapshot{})

	acct := agent.NewAccount("mm", decimal.NewFromInt(100), 0, decimal.Zero, agent.AverageCost)
	s := r.Summary([]*agent.Account{acct})

	assert.Equal(t, 5, s.Ticks)
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, int64(8), s.Volume)
	assert.Equal(t, 100.0, s.FirstMid)
	assert.Equal(t, 100.0, s.LastMid)
	assert.InDelta(t, 0.0, s.Return, 1e-12)
	assert.InDelta(t, 90.0/110.0, 1-s.MaxDrawdown, 1e-9)
	assert.Equal(t, 2.0, s.MeanSpread)
	assert.InDelta(t, 0.2, s.OneSidedPct, 1e-12)
	assert.Positive(t, s.Volatility)
	require.Len(t, s.Agents, 1)
	assert.Equal(t, "mm", s.Agents[0].Agent)

	_, err := json.Marshal(s)
	require.NoError(t, err)
}
