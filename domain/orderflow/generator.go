// Package orderflow produces the background (noise) order flow that keeps
// the book alive between agent actions.
package orderflow

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"lobsim/domain/event"
	"lobsim/domain/orderbook"
	"lobsim/domain/scheduler"
)

// Generator emits the noise events of one window. Implementations hold no
// state between calls beyond their parameters; all randomness comes from
// rng.
type Generator interface {
	Generate(w scheduler.Window, top orderbook.Quote, rng *rand.Rand) []event.Event
}

// Mix is the probability of each event type. It need not sum to one; it is
// normalized.
type Mix struct {
	LimitBuy   float64
	LimitSell  float64
	MarketBuy  float64
	MarketSell float64
	Cancel     float64
}

func (m Mix) total() float64 {
	return m.LimitBuy + m.LimitSell + m.MarketBuy + m.MarketSell + m.Cancel
}

type Params struct {
	// ArrivalRate is the mean number of events per simulated second.
	ArrivalRate float64
	Mix         Mix

	// Sizes are log-normal(SizeMu, SizeSigma), rounded and clipped.
	SizeMu    float64
	SizeSigma float64
	MinSize   int64
	MaxSize   int64

	// Placement: with probability RPointMass the distance in ticks from
	// the reference is geometric(PGeom), otherwise Zipf(AlphaZipf) on
	// [1, MaxDistance]. Drift is the probability of stepping up.
	PGeom       float64
	RPointMass  float64
	AlphaZipf   float64
	MaxDistance int64
	Drift       float64

	// InitialPrice is the reference when the book is empty, in units.
	InitialPrice int64
	Tick         int64
}

func DefaultParams(initialPrice, tick int64) Params {
	return Params{
		ArrivalRate:  10,
		Mix:          Mix{LimitBuy: 0.3, LimitSell: 0.3, MarketBuy: 0.175, MarketSell: 0.175, Cancel: 0.05},
		SizeMu:       1.0,
		SizeSigma:    0.5,
		MinSize:      1,
		MaxSize:      100,
		PGeom:        0.4,
		RPointMass:   0.9,
		AlphaZipf:    1.45,
		MaxDistance:  200,
		Drift:        0.5,
		InitialPrice: initialPrice,
		Tick:         tick,
	}
}

func (p Params) Validate() error {
	switch {
	case p.ArrivalRate < 0:
		return errors.Newf("orderflow: arrival rate %v must not be negative", p.ArrivalRate)
	case p.Mix.total() <= 0:
		return errors.New("orderflow: event mix must have positive weight")
	case p.MinSize < 1 || p.MaxSize < p.MinSize:
		return errors.Newf("orderflow: size range [%d, %d] invalid", p.MinSize, p.MaxSize)
	case p.PGeom <= 0 || p.PGeom > 1:
		return errors.Newf("orderflow: geometric p %v outside (0, 1]", p.PGeom)
	case p.RPointMass < 0 || p.RPointMass > 1:
		return errors.Newf("orderflow: point mass %v outside [0, 1]", p.RPointMass)
	case p.MaxDistance < 1:
		return errors.Newf("orderflow: max distance %d must be at least one tick", p.MaxDistance)
	case p.Drift < 0 || p.Drift > 1:
		return errors.Newf("orderflow: drift %v outside [0, 1]", p.Drift)
	case p.Tick <= 0 || p.InitialPrice <= 0:
		return errors.New("orderflow: tick and initial price must be positive")
	}
	return nil
}

// Poisson is the stock noise generator.
type Poisson struct {
	p    Params
	mix  [5]float64 // cumulative
	zipf []float64  // cumulative over distances 1..MaxDistance
}

var _ Generator = (*Poisson)(nil)

func NewPoisson(p Params) (*Poisson, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &Poisson{p: p}

	w := []float64{p.Mix.LimitBuy, p.Mix.LimitSell, p.Mix.MarketBuy, p.Mix.MarketSell, p.Mix.Cancel}
	acc, total := 0.0, p.Mix.total()
	for i, v := range w {
		acc += v / total
		g.mix[i] = acc
	}
	g.mix[4] = 1

	g.zipf = make([]float64, p.MaxDistance)
	acc, norm := 0.0, 0.0
	for k := int64(1); k <= p.MaxDistance; k++ {
		norm += math.Pow(float64(k), -p.AlphaZipf)
	}
	for k := int64(1); k <= p.MaxDistance; k++ {
		acc += math.Pow(float64(k), -p.AlphaZipf) / norm
		g.zipf[k-1] = acc
	}
	g.zipf[p.MaxDistance-1] = 1
	return g, nil
}

func (g *Poisson) Params() Params { return g.p }

// Generate draws exponential inter-arrival times across the window, so the
// event count is Poisson(rate × step) and arrivals are time ordered.
func (g *Poisson) Generate(w scheduler.Window, top orderbook.Quote, rng *rand.Rand) []event.Event {
	if g.p.ArrivalRate == 0 {
		return nil
	}
	var out []event.Event
	span := (w.End - w.Start).Seconds()
	for t := rng.ExpFloat64() / g.p.ArrivalRate; t < span; t += rng.ExpFloat64() / g.p.ArrivalRate {
		ev := g.draw(top, rng)
		ev.At = w.Clamp(w.Start + time.Duration(t*float64(time.Second)))
		out = append(out, ev)
	}
	return out
}

func (g *Poisson) draw(top orderbook.Quote, rng *rand.Rand) event.Event {
	u := rng.Float64()
	switch {
	case u < g.mix[0]:
		return event.Limit(orderbook.Bid, g.Price(orderbook.Bid, top, rng), g.Size(rng))
	case u < g.mix[1]:
		return event.Limit(orderbook.Ask, g.Price(orderbook.Ask, top, rng), g.Size(rng))
	case u < g.mix[2]:
		return event.Market(orderbook.Bid, g.Size(rng))
	case u < g.mix[3]:
		return event.Market(orderbook.Ask, g.Size(rng))
	default:
		return event.CancelAny(rng.Float64())
	}
}

// Size draws a clipped log-normal order size.
func (g *Poisson) Size(rng *rand.Rand) int64 {
	v := math.Round(math.Exp(g.p.SizeMu + g.p.SizeSigma*rng.NormFloat64()))
	// clip before converting: the draw can overflow int64 or be +Inf
	v = math.Max(float64(g.p.MinSize), math.Min(float64(g.p.MaxSize), v))
	return int64(v)
}

// Price places a limit order relative to the same-side best, falling back
// to the opposite best and then to the initial price.
func (g *Poisson) Price(side orderbook.Side, top orderbook.Quote, rng *rand.Rand) int64 {
	ref := g.p.InitialPrice
	switch {
	case side == orderbook.Bid && top.HasBid:
		ref = top.Bid
	case side == orderbook.Ask && top.HasAsk:
		ref = top.Ask
	case side == orderbook.Bid && top.HasAsk:
		ref = top.Ask
	case side == orderbook.Ask && top.HasBid:
		ref = top.Bid
	}

	dir := int64(-1)
	if rng.Float64() < g.p.Drift {
		dir = 1
	}
	price := ref + dir*g.Distance(rng)*g.p.Tick
	if price < g.p.Tick {
		price = g.p.Tick
	}
	return price
}

// Distance draws a placement distance in ticks, at least one.
func (g *Poisson) Distance(rng *rand.Rand) int64 {
	if rng.Float64() < g.p.RPointMass {
		return geometric(g.p.PGeom, rng)
	}
	return int64(sort.SearchFloat64s(g.zipf, rng.Float64())) + 1
}

func geometric(p float64, rng *rand.Rand) int64 {
	if p >= 1 {
		return 1
	}
	u := rng.Float64()
	return int64(math.Floor(math.Log1p(-u)/math.Log1p(-p))) + 1
}
