package service

import (
	"time"

	"github.com/cockroachdb/errors"

	"lobsim/domain/orderbook"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Population seeds the book before the first tick. Either OrdersPerLevel
// orders go on every level, or TotalOrders are dealt round-robin over the
// levels, alternating sides. Checkpoint, when set and present on disk,
// replaces both.
type Population struct {
	Levels         int
	OrdersPerLevel int
	TotalOrders    int
	MinSize        int64
	MaxSize        int64
	Checkpoint     string
}

type Config struct {
	Book    orderbook.Config
	Step    time.Duration
	Horizon time.Duration
	// InitialPrice in units, on the tick grid.
	InitialPrice int64
	Population   Population

	// SnapshotDepth is how many levels per side agents see; zero shows all.
	SnapshotDepth int
	// SnapshotEvery keeps one book snapshot every that many ticks.
	SnapshotEvery int64
	// Seed only names the run; randomness comes from the rng handed to New.
	Seed int64
	// Audit deep-checks the book after every tick.
	Audit bool
}

func (c Config) Validate() error {
	tick := c.Book.TickSize
	if tick <= 0 {
		tick = 1
	}
	switch {
	case c.InitialPrice <= 0:
		return errors.Wrapf(ErrInvalidConfig, "initial price %d must be positive", c.InitialPrice)
	case c.InitialPrice%tick != 0:
		return errors.Wrapf(ErrInvalidConfig, "initial price %d is off the %d tick grid", c.InitialPrice, tick)
	case c.SnapshotDepth < 0:
		return errors.Wrapf(ErrInvalidConfig, "snapshot depth %d", c.SnapshotDepth)
	}
	return c.Population.validate()
}

func (p Population) validate() error {
	if p.Levels == 0 && p.OrdersPerLevel == 0 && p.TotalOrders == 0 {
		return nil
	}
	switch {
	case p.Levels <= 0:
		return errors.Wrapf(ErrInvalidConfig, "population needs levels, got %d", p.Levels)
	case p.OrdersPerLevel < 0 || p.TotalOrders < 0:
		return errors.Wrap(ErrInvalidConfig, "population order counts must not be negative")
	case p.MinSize < 1 || p.MaxSize < p.MinSize:
		return errors.Wrapf(ErrInvalidConfig, "population size range [%d, %d]", p.MinSize, p.MaxSize)
	}
	return nil
}
