// Package outbox archives run output in pebble and tracks its delivery
// state, so a broadcaster can publish it downstream at least once.
//
// Keys are "run/<run id>/<kind>/<seq:%020d>"; values carry a delivery
// header followed by the payload.
package outbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var ErrNotFound = errors.New("outbox: entry not found")

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one archived item.
type Entry struct {
	Key         string
	RunID       string
	Kind        string
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value layout: [state:1][retries:4][lastAttempt:8][payload]
const headerLen = 1 + 4 + 8

func encodeValue(e Entry) []byte {
	buf := make([]byte, headerLen+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[headerLen:], e.Payload)
	return buf
}

func decodeValue(key string, b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, errors.Newf("outbox: value of %q is %d bytes", key, len(b))
	}
	e := Entry{
		Key:         key,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[headerLen:]...),
	}
	var err error
	e.RunID, e.Kind, e.Seq, err = ParseKey(key)
	return e, err
}

func Key(runID, kind string, seq uint64) string {
	return fmt.Sprintf("run/%s/%s/%020d", runID, kind, seq)
}

func ParseKey(key string) (runID, kind string, seq uint64, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "run" {
		return "", "", 0, errors.Newf("outbox: malformed key %q", key)
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &seq); err != nil {
		return "", "", 0, errors.Wrapf(err, "outbox: malformed key %q", key)
	}
	return parts[1], parts[2], seq, nil
}

type Outbox struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) an outbox directory on disk.
func Open(dir string) (*Outbox, error) {
	return open(dir, &pebble.Options{})
}

// OpenInMemory keeps everything in memory; used by tests and dry runs.
func OpenInMemory() (*Outbox, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dir string, opts *pebble.Options) (*Outbox, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "outbox: open %q", dir)
	}
	return &Outbox{db: db, now: time.Now}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Item is one payload to archive.
type Item struct {
	Kind    string
	Seq     uint64
	Payload []byte
}

// PutBatch archives items of one run atomically, all in StateNew.
func (o *Outbox) PutBatch(runID string, items []Item) error {
	b := o.db.NewBatch()
	defer b.Close()
	for _, it := range items {
		v := encodeValue(Entry{State: StateNew, Payload: it.Payload})
		if err := b.Set([]byte(Key(runID, it.Kind, it.Seq)), v, nil); err != nil {
			return errors.Wrap(err, "outbox: batch set")
		}
	}
	return b.Commit(pebble.Sync)
}

func (o *Outbox) Get(key string) (Entry, error) {
	val, closer, err := o.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeValue(key, val)
}

func (o *Outbox) MarkSent(key string) error {
	return o.transition(key, StateSent)
}

func (o *Outbox) MarkAcked(key string) error {
	return o.transition(key, StateAcked)
}

// MarkFailed records a failed attempt; the entry goes back to NEW so the
// next drain retries it, unless it ran out of retries.
func (o *Outbox) MarkFailed(key string, maxRetries uint32) error {
	e, err := o.Get(key)
	if err != nil {
		return err
	}
	e.Retries++
	e.State = StateNew
	if maxRetries > 0 && e.Retries >= maxRetries {
		e.State = StateFailed
	}
	e.LastAttempt = o.now().UnixNano()
	return o.db.Set([]byte(key), encodeValue(e), pebble.Sync)
}

func (o *Outbox) transition(key string, to State) error {
	e, err := o.Get(key)
	if err != nil {
		return err
	}
	e.State = to
	e.LastAttempt = o.now().UnixNano()
	return o.db.Set([]byte(key), encodeValue(e), pebble.Sync)
}

// Delete removes an entry, normally once ACKED.
func (o *Outbox) Delete(key string) error {
	return o.db.Delete([]byte(key), pebble.Sync)
}

// Scan visits entries whose key starts with prefix, in key order.
func (o *Outbox) Scan(prefix string, fn func(Entry) error) error {
	lower := []byte(prefix)
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upperBound(lower),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeValue(string(iter.Key()), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanByState visits every entry in state. Used by the broadcaster.
func (o *Outbox) ScanByState(state State, fn func(Entry) error) error {
	return o.Scan("run/", func(e Entry) error {
		if e.State != state {
			return nil
		}
		return fn(e)
	})
}

// RunPrefix selects every entry of one run, or one kind of it.
func RunPrefix(runID string, kind string) string {
	if kind == "" {
		return "run/" + runID + "/"
	}
	return "run/" + runID + "/" + kind + "/"
}

func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
