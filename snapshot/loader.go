package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/cockroachdb/errors"

	"lobsim/domain/orderbook"
)

// Read decodes a checkpoint. A missing file yields ok=false and no error.
func Read(path string) (s Snapshot, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "decode %s", path)
	}
	return s, true, nil
}

// Restore rests every order of s in book, keeping ids and queue order.
// With anonymous set the orders join background flow. The book is expected
// to be empty; an order that would trade aborts the restore.
func (s Snapshot) Restore(book *orderbook.OrderBook, anonymous bool) error {
	for _, e := range s.Orders {
		o := orderbook.Order{
			ID:     e.ID,
			Side:   orderbook.Side(e.Side),
			Price:  e.Price,
			Qty:    e.Qty,
			Time:   e.Time,
			Owner:  e.Owner,
			Status: orderbook.Active,
		}
		if anonymous {
			o.Owner = ""
		}
		exec, err := book.SubmitLimit(o)
		if err != nil {
			return errors.Wrapf(err, "restore order %d", e.ID)
		}
		if exec.Filled > 0 {
			return errors.Wrapf(ErrCrossedCheckpoint, "order %d traded %d on restore", e.ID, exec.Filled)
		}
	}
	return nil
}

// Load reads path and restores it into book. It returns the checkpoint so
// the caller can resume id sequencing past Seq.
func Load(path string, book *orderbook.OrderBook, anonymous bool) (Snapshot, bool, error) {
	s, ok, err := Read(path)
	if err != nil || !ok {
		return s, ok, err
	}
	return s, true, s.Restore(book, anonymous)
}
