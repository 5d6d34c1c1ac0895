package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"lobsim/domain/orderbook"
)

const FileName = "snapshot.bin"

type Writer struct {
	Dir string
}

// Capture copies the resting orders of book in price-time order, bids
// first.
func Capture(seq, journalSeq uint64, at time.Duration, book *orderbook.OrderBook) Snapshot {
	s := Snapshot{
		Seq:        seq,
		TradeSeq:   book.TradeSeq(),
		JournalSeq: journalSeq,
		At:         at,
		Created:    time.Now(),
		Orders:     make([]OrderEntry, 0, book.Len()),
	}
	add := func(lvl *orderbook.PriceLevel) {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if o.Status != orderbook.Active {
				continue
			}
			s.Orders = append(s.Orders, OrderEntry{
				ID: o.ID, Side: int(o.Side), Price: o.Price,
				Qty: o.Remaining(), Time: o.Time, Owner: o.Owner,
			})
		}
	}
	book.BidsWalk(add)
	book.AsksWalk(add)
	return s
}

// Write replaces Dir/snapshot.bin. The file is written aside and renamed so
// a crash never leaves a torn checkpoint.
func (w *Writer) Write(seq, journalSeq uint64, at time.Duration, book *orderbook.OrderBook) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create snapshot dir")
	}

	path := filepath.Join(w.Dir, FileName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(err, "create snapshot")
	}

	s := Capture(seq, journalSeq, at, book)
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		return "", errors.Wrap(err, "encode snapshot")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
