// Package pricing converts between decimal prices and the integer price
// units the order book works in.
package pricing

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var ErrOffGrid = errors.New("pricing: price not representable on tick grid")

// Scale maps decimal prices onto integer units. One unit is 10^-Decimals;
// Tick is the tick size expressed in units.
type Scale struct {
	Decimals int32
	Tick     int64
}

// NewScale derives the unit from the number of decimal places of tickSize,
// so "0.01" gives cents with a tick of 1 and "0.05" gives cents with a tick
// of 5.
func NewScale(tickSize decimal.Decimal) (Scale, error) {
	if !tickSize.IsPositive() {
		return Scale{}, errors.Newf("pricing: tick size %s must be positive", tickSize)
	}
	dec := int32(0)
	if exp := tickSize.Exponent(); exp < 0 {
		dec = -exp
	}
	units := tickSize.Shift(dec)
	if !units.IsInteger() {
		return Scale{}, errors.Newf("pricing: tick size %s has too many decimals", tickSize)
	}
	tick := units.IntPart()
	for dec > 0 && tick%10 == 0 {
		// trailing zeros such as "0.10" carry no extra precision
		tick /= 10
		dec--
	}
	return Scale{Decimals: dec, Tick: tick}, nil
}

// MustScale is NewScale for constants known to be valid.
func MustScale(tickSize string) Scale {
	s, err := NewScale(decimal.RequireFromString(tickSize))
	if err != nil {
		panic(err)
	}
	return s
}

// ToUnits converts an on-grid price to units.
func (s Scale) ToUnits(p decimal.Decimal) (int64, error) {
	u := p.Shift(s.Decimals)
	if !u.IsInteger() || u.IntPart()%s.Tick != 0 {
		return 0, errors.Wrapf(ErrOffGrid, "price %s with tick %s", p, s.TickSize())
	}
	return u.IntPart(), nil
}

// RoundToTick rounds any price to the nearest tick, in units.
func (s Scale) RoundToTick(p decimal.Decimal) int64 {
	ticks := p.Shift(s.Decimals).Div(decimal.NewFromInt(s.Tick)).Round(0)
	return ticks.IntPart() * s.Tick
}

// ToDecimal converts units back to a decimal price.
func (s Scale) ToDecimal(units int64) decimal.Decimal {
	return decimal.New(units, -s.Decimals)
}

// FromFloat converts a float price in units (e.g. a mid) to a decimal price.
func (s Scale) FromFloat(units float64) decimal.Decimal {
	return decimal.NewFromFloat(units).Shift(-s.Decimals)
}

func (s Scale) TickSize() decimal.Decimal {
	return s.ToDecimal(s.Tick)
}

// Align snaps units down (for bids) or up (for asks) onto the tick grid.
func (s Scale) Align(units int64, up bool) int64 {
	r := units % s.Tick
	if r == 0 {
		return units
	}
	if r < 0 {
		r += s.Tick
	}
	if up {
		return units - r + s.Tick
	}
	return units - r
}
