package orderbook

func (b *OrderBook) checkUncrossed() error {
	bid, ask := b.Bids.MaxLevel(), b.Asks.MinLevel()
	if bid != nil && ask != nil && bid.Price >= ask.Price {
		return violationf("crossed book: best bid %d >= best ask %d", bid.Price, ask.Price)
	}
	return nil
}

// CheckInvariants walks the whole book: no crossed top, balanced level
// trees, no empty levels, level aggregates equal their queues, and every
// queued order is indexed (and nothing else is).
func (b *OrderBook) CheckInvariants() error {
	if err := b.checkUncrossed(); err != nil {
		return err
	}
	if err := b.Bids.checkShape(); err != nil {
		return err
	}
	if err := b.Asks.checkShape(); err != nil {
		return err
	}

	seen := 0
	var err error
	check := func(s Side) func(*PriceLevel) bool {
		return func(lvl *PriceLevel) bool {
			if err = b.checkLevel(s, lvl); err != nil {
				return false
			}
			seen += lvl.OrderCount
			return true
		}
	}
	b.Bids.ForEachAscending(check(Bid))
	if err != nil {
		return err
	}
	b.Asks.ForEachAscending(check(Ask))
	if err != nil {
		return err
	}
	if seen != len(b.index) {
		return violationf("index holds %d orders, queues hold %d", len(b.index), seen)
	}
	return nil
}

func (b *OrderBook) checkLevel(s Side, lvl *PriceLevel) error {
	if lvl.Empty() {
		return violationf("empty %s level at %d", s, lvl.Price)
	}
	var qty int64
	count := 0
	var prev *Order
	for o := lvl.head; o != nil; o = o.next {
		switch {
		case o.prev != prev:
			return violationf("order %d: broken back link at %d", o.ID, lvl.Price)
		case o.level != lvl:
			return violationf("order %d: level pointer mismatch at %d", o.ID, lvl.Price)
		case o.Side != s || o.Price != lvl.Price:
			return violationf("order %d: queued on wrong level %s@%d", o.ID, s, lvl.Price)
		case o.Remaining() <= 0:
			return violationf("order %d: resting with no quantity", o.ID)
		case b.index[o.ID] != o:
			return violationf("order %d: not indexed", o.ID)
		}
		qty += o.Remaining()
		count++
		prev = o
	}
	if lvl.tail != prev {
		return violationf("level %d: tail mismatch", lvl.Price)
	}
	if qty != lvl.TotalQty || count != lvl.OrderCount {
		return violationf("level %d: aggregates %d/%d, queue %d/%d", lvl.Price, lvl.TotalQty, lvl.OrderCount, qty, count)
	}
	return nil
}
