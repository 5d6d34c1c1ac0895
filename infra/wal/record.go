package wal

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"

	"lobsim/domain/orderbook"
)

var ErrCorrupt = errors.New("wal: corrupt record")

type RecordType uint8

const (
	RecordSubmit RecordType = iota + 1
	RecordCancel
)

func (t RecordType) String() string {
	switch t {
	case RecordSubmit:
		return "submit"
	case RecordCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Record is one journal entry. Seq is assigned by the journal on append;
// Time is simulated time.
type Record struct {
	Type RecordType
	Seq  uint64
	Time time.Duration
	Data []byte
}

const headerLen = 1 + 8 + 8 + 4

// SubmitRecord journals an accepted order as submitted (before matching).
func SubmitRecord(o orderbook.Order) *Record {
	return &Record{Type: RecordSubmit, Time: o.Time, Data: EncodeOrder(o)}
}

// CancelRecord journals an effective cancel of id.
func CancelRecord(at time.Duration, id uint64) *Record {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return &Record{Type: RecordCancel, Time: at, Data: buf}
}

// order payload: [id:8][side:1][type:1][price:8][qty:8][ownerLen:uvarint][owner]
func EncodeOrder(o orderbook.Order) []byte {
	buf := make([]byte, fixedOrderLen, fixedOrderLen+binary.MaxVarintLen64+len(o.Owner))
	binary.BigEndian.PutUint64(buf[0:8], o.ID)
	buf[8] = byte(o.Side)
	buf[9] = byte(o.Type)
	binary.BigEndian.PutUint64(buf[10:18], uint64(o.Price))
	binary.BigEndian.PutUint64(buf[18:26], uint64(o.Qty))
	buf = binary.AppendUvarint(buf, uint64(len(o.Owner)))
	return append(buf, o.Owner...)
}

const fixedOrderLen = 26

func DecodeOrder(b []byte) (orderbook.Order, error) {
	if len(b) <= fixedOrderLen {
		return orderbook.Order{}, errors.Wrapf(ErrCorrupt, "order payload of %d bytes", len(b))
	}
	n, k := binary.Uvarint(b[fixedOrderLen:])
	if k <= 0 {
		return orderbook.Order{}, errors.Wrap(ErrCorrupt, "bad owner length")
	}
	rest := b[fixedOrderLen+k:]
	if uint64(len(rest)) != n {
		return orderbook.Order{}, errors.Wrapf(ErrCorrupt, "owner length %d does not fit payload of %d bytes", n, len(b))
	}
	return orderbook.Order{
		ID:    binary.BigEndian.Uint64(b[0:8]),
		Side:  orderbook.Side(b[8]),
		Type:  orderbook.OrderType(b[9]),
		Price: int64(binary.BigEndian.Uint64(b[10:18])),
		Qty:   int64(binary.BigEndian.Uint64(b[18:26])),
		Owner: string(rest),
	}, nil
}

// CancelTarget decodes the order id of a cancel record.
func (r *Record) CancelTarget() (uint64, error) {
	if r.Type != RecordCancel || len(r.Data) != 8 {
		return 0, errors.Wrapf(ErrCorrupt, "record %d is not a cancel", r.Seq)
	}
	return binary.BigEndian.Uint64(r.Data), nil
}

func (r *Record) frame() []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerLen+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerLen:], r.Data)

	crc := CRC32(buf[:headerLen+payloadLen])
	binary.BigEndian.PutUint32(buf[headerLen+payloadLen:], crc)
	return buf
}
