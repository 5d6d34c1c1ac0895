package orderbook

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidOrder rejects an order before it touches the book.
	ErrInvalidOrder = errors.New("orderbook: invalid order")
	// ErrUnknownOrder is reported when a cancel names an id that is not resting.
	ErrUnknownOrder = errors.New("orderbook: unknown order")
	// ErrEmptyBookSide is returned by top-of-book queries on an empty side.
	ErrEmptyBookSide = errors.New("orderbook: empty book side")
	// ErrBookInvariantViolation is fatal; the run that produced it must stop.
	ErrBookInvariantViolation = errors.New("orderbook: invariant violation")
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidOrder, format, args...)
}

func violationf(format string, args ...any) error {
	return errors.Wrapf(ErrBookInvariantViolation, format, args...)
}
