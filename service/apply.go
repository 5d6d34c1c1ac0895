package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobsim/domain/agent"
	"lobsim/domain/event"
	"lobsim/domain/orderbook"
	"lobsim/domain/scheduler"
	"lobsim/infra/wal"
)

// apply executes one event. owner is nil for background flow. Only fatal
// errors (book corruption, journal failure) are returned; rejections are
// acked and the run goes on.
func (s *Simulator) apply(w scheduler.Window, ev event.Event, owner agent.Agent) error {
	ev.At = w.Clamp(ev.At)
	switch ev.Kind {
	case event.SubmitLimit, event.SubmitMarket:
		return s.submit(w, ev, owner)
	case event.Cancel:
		return s.cancel(ev, owner)
	default:
		err := errors.Wrapf(orderbook.ErrInvalidOrder, "unknown event kind %d", ev.Kind)
		s.reject(ev, owner, 0, err)
		return nil
	}
}

func (s *Simulator) submit(w scheduler.Window, ev event.Event, owner agent.Agent) error {
	o := orderbook.Order{
		ID:     s.seq.Next(),
		Side:   ev.Side,
		Price:  ev.Price,
		Qty:    ev.Qty,
		Time:   ev.At,
		Owner:  ev.Owner,
		Status: orderbook.Active,
	}

	var (
		exec orderbook.Execution
		err  error
	)
	if ev.Kind == event.SubmitMarket {
		o.Type = orderbook.Market
		exec, err = s.book.SubmitMarket(o)
	} else {
		o.Type = orderbook.Limit
		exec, err = s.book.SubmitLimit(o)
	}
	if errors.Is(err, orderbook.ErrBookInvariantViolation) {
		return err
	}
	if err != nil {
		s.reject(ev, owner, o.ID, err)
		return nil
	}

	s.counters.Submitted++
	if s.journal != nil {
		if jerr := s.journal.Append(wal.SubmitRecord(o)); jerr != nil {
			return errors.Wrapf(jerr, "journal order %d", o.ID)
		}
	}
	if owner != nil && exec.Rested > 0 {
		s.meta[o.ID] = orderMeta{ref: ev.Ref, refPrice: ev.RefPrice}
	}

	for _, tr := range exec.Trades {
		s.settle(w, tr, ev)
	}

	if owner != nil {
		owner.OnAck(agent.Ack{
			Ref:       ev.Ref,
			Kind:      ev.Kind,
			OrderID:   o.ID,
			Time:      ev.At,
			Requested: exec.Requested,
			Filled:    exec.Filled,
			Rested:    exec.Rested,
		})
	}
	return nil
}

// cancel removes one resting order of the event's owner. A zero target
// picks among the owner's resting orders with ev.Pick.
func (s *Simulator) cancel(ev event.Event, owner agent.Agent) error {
	target := ev.Target
	if target == 0 {
		ids := s.book.RestingOrderIDs(ev.Owner)
		if len(ids) == 0 {
			s.ackCancel(ev, owner, 0, false, nil)
			return nil
		}
		i := int(ev.Pick * float64(len(ids)))
		target = ids[min(max(i, 0), len(ids)-1)]
	}

	o, ok := s.book.Lookup(target)
	if !ok || o.Owner != ev.Owner {
		err := errors.Wrapf(orderbook.ErrUnknownOrder, "order %d is not a resting order of %q", target, ev.Owner)
		s.log.Debug("cancel ignored", zap.Error(err))
		s.ackCancel(ev, owner, target, false, err)
		return nil
	}

	s.book.Cancel(target)
	delete(s.meta, target)
	s.counters.Cancelled++
	if s.journal != nil {
		if err := s.journal.Append(wal.CancelRecord(ev.At, target)); err != nil {
			return errors.Wrapf(err, "journal cancel %d", target)
		}
	}
	s.ackCancel(ev, owner, target, true, nil)
	return nil
}

func (s *Simulator) ackCancel(ev event.Event, owner agent.Agent, id uint64, done bool, err error) {
	if owner == nil {
		return
	}
	owner.OnAck(agent.Ack{
		Ref:       ev.Ref,
		Kind:      event.Cancel,
		OrderID:   id,
		Time:      ev.At,
		Cancelled: done,
		Err:       err,
	})
}

func (s *Simulator) reject(ev event.Event, owner agent.Agent, id uint64, err error) {
	s.counters.Rejected++
	s.log.Debug("order rejected",
		zap.String("owner", ev.Owner),
		zap.Stringer("kind", ev.Kind),
		zap.Int64("price", ev.Price),
		zap.Int64("qty", ev.Qty),
		zap.Error(err),
	)
	if owner == nil {
		return
	}
	owner.OnAck(agent.Ack{
		Ref:       ev.Ref,
		Kind:      ev.Kind,
		OrderID:   id,
		Time:      ev.At,
		Requested: ev.Qty,
		Err:       err,
	})
}

// settle books one trade on both accounts. Background flow has no account.
func (s *Simulator) settle(w scheduler.Window, tr orderbook.Trade, taker event.Event) {
	s.trades = append(s.trades, tr)
	s.tick = append(s.tick, tr)
	s.rec.ObserveTrade(tr)

	if a, ok := s.byID[tr.MakerOwner]; ok {
		m := s.meta[tr.MakerOrderID]
		s.credit(w, a, agent.Fill{
			TradeID:  tr.ID,
			OrderID:  tr.MakerOrderID,
			Ref:      m.ref,
			Side:     tr.Aggressor.Opposite(),
			Price:    tr.Price,
			Qty:      tr.Qty,
			Time:     tr.Time,
			Maker:    true,
			RefPrice: m.refPrice,
		})
	}
	if _, resting := s.book.Lookup(tr.MakerOrderID); !resting {
		delete(s.meta, tr.MakerOrderID)
	}

	if a, ok := s.byID[tr.TakerOwner]; ok {
		s.credit(w, a, agent.Fill{
			TradeID:  tr.ID,
			OrderID:  tr.TakerOrderID,
			Ref:      taker.Ref,
			Side:     tr.Aggressor,
			Price:    tr.Price,
			Qty:      tr.Qty,
			Time:     tr.Time,
			RefPrice: taker.RefPrice,
		})
	}
}

func (s *Simulator) credit(w scheduler.Window, a agent.Agent, f agent.Fill) {
	acct := a.Account()
	acct.Apply(f.Side, s.px.ToDecimal(f.Price), f.Qty)
	a.OnFill(f)
	mark := s.rec.Mark(s.book.Top(), s.fallbackMark())
	s.rec.RecordFill(w, acct, f, mark)
}
