package orderflow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/domain/event"
	"lobsim/domain/orderbook"
	"lobsim/domain/scheduler"
)

func window(i int64, step time.Duration) scheduler.Window {
	return scheduler.Window{Index: i, Start: time.Duration(i) * step, End: time.Duration(i+1) * step}
}

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	g, err := NewPoisson(DefaultParams(10000, 1))
	require.NoError(t, err)
	top := orderbook.Quote{Bid: 9995, Ask: 10005, HasBid: true, HasAsk: true}

	run := func(seed int64) []event.Event {
		rng := rand.New(rand.NewSource(seed))
		var all []event.Event
		for i := int64(0); i < 50; i++ {
			all = append(all, g.Generate(window(i, 100*time.Millisecond), top, rng)...)
		}
		return all
	}
	a, b := run(7), run(7)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, run(8))
}

func TestArrivalRateAndOrdering(t *testing.T) {
	p := DefaultParams(10000, 1)
	p.ArrivalRate = 50
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	total := 0
	for i := int64(0); i < 200; i++ {
		w := window(i, time.Second)
		evs := g.Generate(w, orderbook.Quote{}, rng)
		for j, ev := range evs {
			require.True(t, w.Contains(ev.At))
			if j > 0 {
				require.GreaterOrEqual(t, ev.At, evs[j-1].At)
			}
		}
		total += len(evs)
	}
	// 200 s at 50/s; Poisson sd is 100
	assert.InDelta(t, 10000, total, 500)
}

func TestZeroRateIsSilent(t *testing.T) {
	p := DefaultParams(100, 1)
	p.ArrivalRate = 0
	g, err := NewPoisson(p)
	require.NoError(t, err)
	assert.Empty(t, g.Generate(window(0, time.Second), orderbook.Quote{}, rand.New(rand.NewSource(1))))
}

func TestSizesClipped(t *testing.T) {
	p := DefaultParams(100, 1)
	p.SizeMu, p.SizeSigma = 3, 2
	p.MinSize, p.MaxSize = 2, 40
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 5000; i++ {
		s := g.Size(rng)
		require.GreaterOrEqual(t, s, int64(2))
		require.LessOrEqual(t, s, int64(40))
	}
}

func TestOverflowingSizesClipToMax(t *testing.T) {
	p := DefaultParams(100, 1)
	p.SizeMu, p.SizeSigma = 0, 1e9
	p.MinSize, p.MaxSize = 1, 50
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))

	seen := map[int64]int{}
	for i := 0; i < 1000; i++ {
		s := g.Size(rng)
		require.True(t, s == 1 || s == 50, "size %d", s)
		seen[s]++
	}
	assert.NotZero(t, seen[50], "huge draws must land on the max")
	assert.NotZero(t, seen[1])
}

func TestPricesOnGridAndPositive(t *testing.T) {
	p := DefaultParams(30, 5)
	p.Drift = 0.2
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 5000; i++ {
		price := g.Price(orderbook.Bid, orderbook.Quote{}, rng)
		require.Positive(t, price)
		require.Zero(t, price%5)
	}
}

func TestPriceReference(t *testing.T) {
	p := DefaultParams(10000, 1)
	p.Drift = 1
	p.RPointMass = 1
	p.PGeom = 1
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	// PGeom = 1 always steps exactly one tick up
	assert.Equal(t, int64(10001), g.Price(orderbook.Bid, orderbook.Quote{}, rng))
	assert.Equal(t, int64(501), g.Price(orderbook.Bid, orderbook.Quote{Bid: 500, HasBid: true, Ask: 600, HasAsk: true}, rng))
	assert.Equal(t, int64(601), g.Price(orderbook.Bid, orderbook.Quote{Ask: 600, HasAsk: true}, rng))
	assert.Equal(t, int64(501), g.Price(orderbook.Ask, orderbook.Quote{Bid: 500, HasBid: true}, rng))
}

func TestDistanceSupport(t *testing.T) {
	p := DefaultParams(10000, 1)
	p.RPointMass = 0
	p.MaxDistance = 20
	g, err := NewPoisson(p)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))

	ones := 0
	for i := 0; i < 10000; i++ {
		dist := g.Distance(rng)
		require.GreaterOrEqual(t, dist, int64(1))
		require.LessOrEqual(t, dist, int64(20))
		if dist == 1 {
			ones++
		}
	}
	assert.Greater(t, ones, 3000, "Zipf mass should concentrate at one tick")
}

func TestMixSelectsKinds(t *testing.T) {
	p := DefaultParams(10000, 1)
	p.Mix = Mix{Cancel: 1}
	g, err := NewPoisson(p)
	require.NoError(t, err)

	evs := g.Generate(window(0, 10*time.Second), orderbook.Quote{}, rand.New(rand.NewSource(2)))
	require.NotEmpty(t, evs)
	for _, ev := range evs {
		assert.Equal(t, event.Cancel, ev.Kind)
		assert.Zero(t, ev.Target)
		assert.GreaterOrEqual(t, ev.Pick, 0.0)
		assert.Less(t, ev.Pick, 1.0)
	}
}

func TestValidate(t *testing.T) {
	p := DefaultParams(100, 1)
	p.MaxSize = 0
	_, err := NewPoisson(p)
	assert.Error(t, err)

	p = DefaultParams(100, 1)
	p.Mix = Mix{}
	_, err = NewPoisson(p)
	assert.Error(t, err)
}
