package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobsim/domain/orderbook"
	"lobsim/infra/wal"
	"lobsim/snapshot"
)

// Populate seeds the book before the first tick: from the configured
// checkpoint when it exists, otherwise with background orders on Levels
// price levels either side of the initial price. Seeded orders are
// journaled like any other submission. Run calls it when the caller did
// not.
func (s *Simulator) Populate() error {
	if s.populated {
		return nil
	}
	s.populated = true

	p := s.cfg.Population
	if p.Checkpoint != "" {
		cp, ok, err := snapshot.Read(p.Checkpoint)
		if err != nil {
			return err
		}
		if ok {
			return s.warmStart(cp)
		}
		s.log.Info("no checkpoint, populating fresh book", zap.String("path", p.Checkpoint))
	}
	if p.Levels == 0 {
		return nil
	}

	tick := s.book.TickSize()
	place := func(side orderbook.Side, level int) error {
		price := s.cfg.InitialPrice - int64(level)*tick
		if side == orderbook.Ask {
			price = s.cfg.InitialPrice + int64(level)*tick
		}
		if price <= 0 {
			return nil
		}
		size := p.MinSize
		if span := p.MaxSize - p.MinSize; span > 0 {
			size += s.rng.Int63n(span + 1)
		}
		return s.seed(orderbook.Order{
			ID:     s.seq.Next(),
			Side:   side,
			Type:   orderbook.Limit,
			Price:  price,
			Qty:    size,
			Status: orderbook.Active,
		})
	}

	if p.TotalOrders > 0 {
		for i := 0; i < p.TotalOrders; i++ {
			side := orderbook.Bid
			if i%2 == 1 {
				side = orderbook.Ask
			}
			if err := place(side, (i/2)%p.Levels+1); err != nil {
				return err
			}
		}
	} else {
		for level := 1; level <= p.Levels; level++ {
			for j := 0; j < p.OrdersPerLevel; j++ {
				if err := place(orderbook.Bid, level); err != nil {
					return err
				}
				if err := place(orderbook.Ask, level); err != nil {
					return err
				}
			}
		}
	}
	s.log.Info("book populated", zap.Int("orders", s.book.Len()))
	return nil
}

func (s *Simulator) seed(o orderbook.Order) error {
	exec, err := s.book.SubmitLimit(o)
	if err != nil {
		return errors.Wrapf(err, "populate order %d", o.ID)
	}
	if len(exec.Trades) > 0 {
		return errors.Wrapf(snapshot.ErrCrossedCheckpoint, "seed order %d traded", o.ID)
	}
	if s.journal != nil {
		return s.journal.Append(wal.SubmitRecord(o))
	}
	return nil
}

// warmStart rests the checkpoint's orders as background flow and resumes
// id sequencing after them.
func (s *Simulator) warmStart(cp snapshot.Snapshot) error {
	for _, e := range cp.Orders {
		if err := s.seed(orderbook.Order{
			ID:     e.ID,
			Side:   orderbook.Side(e.Side),
			Type:   orderbook.Limit,
			Price:  e.Price,
			Qty:    e.Qty,
			Status: orderbook.Active,
		}); err != nil {
			return err
		}
	}
	s.seq.Reset(cp.Seq)
	s.log.Info("warm start", zap.Int("orders", len(cp.Orders)), zap.Uint64("seq", cp.Seq))
	return nil
}
