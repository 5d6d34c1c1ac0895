package snapshot

import (
	"time"

	"github.com/cockroachdb/errors"
)

var ErrCrossedCheckpoint = errors.New("checkpoint crosses the book")

type Snapshot struct {
	// Seq is the highest order id issued when the checkpoint was taken.
	Seq      uint64
	TradeSeq uint64
	// JournalSeq is the last journal record the checkpoint covers.
	JournalSeq uint64
	// At is the simulated time of the checkpoint.
	At      time.Duration
	Created time.Time
	Orders  []OrderEntry
}

// OrderEntry is one resting order. Qty is what was still open.
type OrderEntry struct {
	ID    uint64
	Side  int
	Price int64
	Qty   int64
	Time  time.Duration
	Owner string
}
