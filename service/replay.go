package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobsim/domain/orderbook"
	"lobsim/infra/wal"
	"lobsim/snapshot"
)

// Replayed is the state rebuilt from a journal.
type Replayed struct {
	Book    *orderbook.OrderBook
	Trades  []orderbook.Trade
	LastSeq uint64
	// MaxOrderID is where a resumed run continues its order ids.
	MaxOrderID uint64
}

// Replay rebuilds a book from the journal in dir. With a checkpoint path
// the book starts from that checkpoint and only the journal records after
// it are applied; trades before the checkpoint are then not reproduced.
// Records must replay cleanly: a rejection or an ineffective cancel means
// the journal does not match book, and is reported as corruption.
func Replay(dir, checkpoint string, book orderbook.Config, log *zap.Logger) (*Replayed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Replayed{Book: orderbook.NewOrderBook(book)}

	var from uint64
	if checkpoint != "" {
		cp, ok, err := snapshot.Load(checkpoint, out.Book, false)
		if err != nil {
			return nil, err
		}
		if ok {
			from = cp.JournalSeq
			out.MaxOrderID = cp.Seq
		}
	}

	last, err := wal.Replay(dir, func(r *wal.Record) error {
		if r.Seq <= from {
			return nil
		}
		switch r.Type {
		case wal.RecordSubmit:
			o, err := wal.DecodeOrder(r.Data)
			if err != nil {
				return err
			}
			o.Time = r.Time
			o.Status = orderbook.Active
			out.MaxOrderID = max(out.MaxOrderID, o.ID)

			var exec orderbook.Execution
			if o.Type == orderbook.Market {
				exec, err = out.Book.SubmitMarket(o)
			} else {
				exec, err = out.Book.SubmitLimit(o)
			}
			if err != nil {
				return errors.Wrapf(wal.ErrCorrupt, "record %d: %v", r.Seq, err)
			}
			out.Trades = append(out.Trades, exec.Trades...)
		case wal.RecordCancel:
			id, err := r.CancelTarget()
			if err != nil {
				return err
			}
			if !out.Book.Cancel(id) {
				return errors.Wrapf(wal.ErrCorrupt, "record %d: order %d is not resting", r.Seq, id)
			}
		default:
			return errors.Wrapf(wal.ErrCorrupt, "record %d: unknown type %d", r.Seq, r.Type)
		}
		return nil
	})
	out.LastSeq = last
	if err != nil {
		return out, err
	}
	log.Info("journal replayed",
		zap.Uint64("last_seq", last),
		zap.Int("trades", len(out.Trades)),
		zap.Int("resting", out.Book.Len()),
	)
	return out, nil
}
