package orderbook

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

type opSpec struct {
	kind  int // 0 limit, 1 market, 2 cancel
	side  Side
	price int64
	qty   int64
	owner string
	pick  int
}

func drawOps(t *rapid.T) []opSpec {
	n := rapid.IntRange(1, 120).Draw(t, "n")
	ops := make([]opSpec, n)
	for i := range ops {
		ops[i] = opSpec{
			kind:  rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("kind-%d", i)) % 3,
			side:  Side(rapid.IntRange(0, 1).Draw(t, fmt.Sprintf("side-%d", i))),
			price: rapid.Int64Range(90, 110).Draw(t, fmt.Sprintf("price-%d", i)),
			qty:   rapid.Int64Range(1, 20).Draw(t, fmt.Sprintf("qty-%d", i)),
			owner: rapid.SampledFrom([]string{"", "a", "b"}).Draw(t, fmt.Sprintf("owner-%d", i)),
			pick:  rapid.IntRange(0, 1000).Draw(t, fmt.Sprintf("pick-%d", i)),
		}
	}
	return ops
}

// replay drives a book and checks invariants after every step.
func replay(t *rapid.T, book *OrderBook, ops []opSpec) {
	var id uint64
	for i, op := range ops {
		var (
			exec Execution
			err  error
		)
		switch op.kind {
		case 0:
			id++
			exec, err = book.SubmitLimit(Order{ID: id, Side: op.side, Price: op.price, Qty: op.qty, Owner: op.owner})
		case 1:
			id++
			exec, err = book.SubmitMarket(Order{ID: id, Side: op.side, Qty: op.qty, Owner: op.owner})
		case 2:
			ids := book.RestingOrderIDs(op.owner)
			if len(ids) > 0 {
				target := ids[op.pick%len(ids)]
				if !book.Cancel(target) {
					t.Fatalf("op %d: cancel of resting %d failed", i, target)
				}
				if book.Cancel(target) {
					t.Fatalf("op %d: second cancel of %d succeeded", i, target)
				}
			}
		}
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		if err := book.CheckInvariants(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		if got := exec.Filled + exec.Rested + exec.Dropped; op.kind != 2 && got != exec.Requested {
			t.Fatalf("op %d: filled %d + rested %d + dropped %d != requested %d",
				i, exec.Filled, exec.Rested, exec.Dropped, exec.Requested)
		}

		var traded int64
		for _, tr := range exec.Trades {
			traded += tr.Qty
			if tr.Aggressor == Bid && op.kind == 0 && tr.Price > op.price {
				t.Fatalf("op %d: buy %d filled above its limit at %d", i, op.price, tr.Price)
			}
			if tr.Aggressor == Ask && op.kind == 0 && tr.Price < op.price {
				t.Fatalf("op %d: sell %d filled below its limit at %d", i, op.price, tr.Price)
			}
		}
		if traded != exec.Filled {
			t.Fatalf("op %d: trades carry %d, execution says %d", i, traded, exec.Filled)
		}
	}
}

func TestPropertyBookNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := SelfTradePolicy(rapid.IntRange(0, 1).Draw(t, "policy"))
		book := NewOrderBook(Config{TickSize: 1, SelfTrade: policy})
		replay(t, book, drawOps(t))

		q := book.Top()
		if q.Two() && q.Bid >= q.Ask {
			t.Fatalf("crossed: %d >= %d", q.Bid, q.Ask)
		}
	})
}

func TestPropertyQuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook(Config{TickSize: 1})
		ops := drawOps(t)

		// inflow counts every unit that entered the book or traded as taker
		var inflow, traded, cancelled, bought, sold int64
		var id uint64
		for _, op := range ops {
			var exec Execution
			var err error
			switch op.kind {
			case 0:
				id++
				exec, err = book.SubmitLimit(Order{ID: id, Side: op.side, Price: op.price, Qty: op.qty})
				inflow += exec.Filled + exec.Rested
			case 1:
				id++
				exec, err = book.SubmitMarket(Order{ID: id, Side: op.side, Qty: op.qty})
				inflow += exec.Filled
			case 2:
				ids := book.RestingOrderIDs("")
				if len(ids) > 0 {
					target := ids[op.pick%len(ids)]
					o, _ := book.Lookup(target)
					book.Cancel(target)
					cancelled += o.Remaining()
				}
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, tr := range exec.Trades {
				traded += tr.Qty
				if tr.BuyOrderID() != 0 {
					bought += tr.Qty
				}
				if tr.SellOrderID() != 0 {
					sold += tr.Qty
				}
			}
		}

		snap := book.Snapshot(0)
		onBook := snap.BidQty + snap.AskQty
		if inflow != 2*traded+cancelled+onBook {
			t.Fatalf("inflow %d != 2*traded %d + cancelled %d + resting %d", inflow, traded, cancelled, onBook)
		}
		if bought != sold {
			t.Fatalf("bought %d != sold %d", bought, sold)
		}
	})
}

func TestPropertyFIFOAtEqualPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook(Config{TickSize: 1})
		n := rapid.IntRange(2, 15).Draw(t, "n")
		for i := 1; i <= n; i++ {
			qty := rapid.Int64Range(1, 10).Draw(t, fmt.Sprintf("qty-%d", i))
			if _, err := book.SubmitLimit(Order{ID: uint64(i), Side: Ask, Price: 100, Qty: qty}); err != nil {
				t.Fatal(err)
			}
		}
		take := rapid.Int64Range(1, 200).Draw(t, "take")
		exec, err := book.SubmitMarket(Order{ID: 1000, Side: Bid, Qty: take})
		if err != nil {
			t.Fatal(err)
		}
		for i, tr := range exec.Trades {
			if tr.MakerOrderID != uint64(i+1) {
				t.Fatalf("trade %d hit order %d, want %d", i, tr.MakerOrderID, i+1)
			}
		}
	})
}
