// Package strategy holds the stock trading agents: a symmetric market maker
// and an execution agent that works parent orders through a schedule.
package strategy

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Slice is one child order of a parent: Qty to execute at At.
type Slice struct {
	At  time.Duration
	Qty int64
}

// Schedule splits a parent quantity into timed slices. Slice quantities
// always sum to qty.
type Schedule interface {
	Name() string
	Slices(start time.Duration, qty int64, rng *rand.Rand) []Slice
}

// Block sends the whole quantity at once.
type Block struct{}

func (Block) Name() string { return "block" }

func (Block) Slices(start time.Duration, qty int64, _ *rand.Rand) []Slice {
	return []Slice{{At: start, Qty: qty}}
}

// TWAP splits evenly over Duration. Each slice lands at a uniformly random
// point inside its own interval.
type TWAP struct {
	Intervals int
	Duration  time.Duration
}

func (TWAP) Name() string { return "twap" }

func (s TWAP) Slices(start time.Duration, qty int64, rng *rand.Rand) []Slice {
	n := int64(max(s.Intervals, 1))
	step := s.Duration / time.Duration(n)
	base, extra := qty/n, qty%n

	out := make([]Slice, 0, n)
	for i := int64(0); i < n; i++ {
		q := base
		if i < extra {
			q++
		}
		at := start + time.Duration(i)*step
		if step > 0 {
			at += time.Duration(rng.Int63n(int64(step)))
		}
		if q > 0 {
			out = append(out, Slice{At: at, Qty: q})
		}
	}
	return out
}

// VWAP follows a volume profile: slice i of len(Profile) gets a share of
// the quantity proportional to Profile[i], at the start of its interval.
type VWAP struct {
	Duration time.Duration
	Profile  []float64
}

func (VWAP) Name() string { return "vwap" }

func (s VWAP) Slices(start time.Duration, qty int64, _ *rand.Rand) []Slice {
	if len(s.Profile) == 0 {
		return Block{}.Slices(start, qty, nil)
	}
	var total float64
	for _, w := range s.Profile {
		total += w
	}
	if total <= 0 {
		return Block{}.Slices(start, qty, nil)
	}
	step := s.Duration / time.Duration(len(s.Profile))

	var out []Slice
	var cum float64
	var done int64
	for i, w := range s.Profile {
		cum += w
		target := int64(math.Round(float64(qty) * cum / total))
		if i == len(s.Profile)-1 {
			target = qty
		}
		if q := target - done; q > 0 {
			out = append(out, Slice{At: start + time.Duration(i)*step, Qty: q})
			done = target
		}
	}
	return out
}

// ParseSchedule builds a schedule by name.
func ParseSchedule(name string, intervals int, duration time.Duration, profile []float64) (Schedule, error) {
	switch strings.ToLower(name) {
	case "block", "":
		return Block{}, nil
	case "twap":
		if intervals < 1 {
			return nil, errors.Newf("strategy: twap needs at least one interval, got %d", intervals)
		}
		return TWAP{Intervals: intervals, Duration: duration}, nil
	case "vwap":
		var total float64
		for _, w := range profile {
			if w < 0 {
				return nil, errors.Newf("strategy: negative vwap weight %v", w)
			}
			total += w
		}
		if total <= 0 {
			return nil, errors.New("strategy: vwap needs a volume profile with positive weight")
		}
		return VWAP{Duration: duration, Profile: profile}, nil
	}
	return nil, errors.Newf("strategy: unknown schedule %q", name)
}

// ParseProfile reads comma-separated weights such as "0.3,0.2,0.5".
func ParseProfile(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "strategy: bad profile weight %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
