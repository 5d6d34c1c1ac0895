package config

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/domain/orderbook"
	"lobsim/strategy"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Sim.Step)
	assert.Equal(t, "0.01", cfg.Sim.TickSize)
	assert.True(t, cfg.Maker.Enabled)
	assert.Empty(t, cfg.Taker.Parents)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.NoError(t, cfg.Validate())

	px, err := cfg.Scale()
	require.NoError(t, err)
	price, err := cfg.InitialPriceUnits(px)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), price)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOBSIM_SEED", "42")
	t.Setenv("LOBSIM_HORIZON", "10m")
	t.Setenv("LOBSIM_TICK_SIZE", "0.05")
	t.Setenv("LOBSIM_INITIAL_PRICE", "25.10")
	t.Setenv("LOBSIM_SELF_TRADE", "skip")
	t.Setenv("LOBSIM_AUDIT", "yes")
	t.Setenv("LOBSIM_TAKER_PARENTS", "60s:buy:500:twap; 2m:sell:100:block:5m")
	t.Setenv("LOBSIM_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("LOBSIM_MAKER_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.Sim.Seed)
	assert.Equal(t, 10*time.Minute, cfg.Sim.Horizon)
	assert.True(t, cfg.Sim.Audit)
	assert.Equal(t, 5*time.Second, cfg.Maker.Interval, "malformed values fall back to defaults")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)

	require.Len(t, cfg.Taker.Parents, 2)
	assert.Equal(t, ParentConfig{Start: time.Minute, Side: orderbook.Bid, Qty: 500, Schedule: "twap"}, cfg.Taker.Parents[0])
	assert.Equal(t, ParentConfig{Start: 2 * time.Minute, Side: orderbook.Ask, Qty: 100, Schedule: "block", CancelAt: 5 * time.Minute}, cfg.Taker.Parents[1])

	policy, err := cfg.SelfTradePolicy()
	require.NoError(t, err)
	assert.Equal(t, orderbook.SelfTradeSkip, policy)

	px, err := cfg.Scale()
	require.NoError(t, err)
	price, err := cfg.InitialPriceUnits(px)
	require.NoError(t, err)
	assert.Equal(t, int64(2510), price)

	sched, err := cfg.Schedule(cfg.Taker.Parents[0])
	require.NoError(t, err)
	assert.Equal(t, strategy.TWAP{Intervals: 10, Duration: 10 * time.Minute}, sched)
	require.NoError(t, cfg.Validate())
}

func TestParseParentsRejects(t *testing.T) {
	for _, in := range []string{
		"60s:buy",
		"soon:buy:10",
		"60s:hold:10",
		"60s:buy:-5",
		"60s:buy:10:twap:later",
	} {
		_, err := ParseParents(in)
		assert.True(t, errors.Is(err, ErrInvalid), in)
	}

	_, err := Load()
	require.NoError(t, err)
	t.Setenv("LOBSIM_TAKER_PARENTS", "60s:buy")
	_, err = Load()
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"off-grid price": func(c *Config) { c.Sim.InitialPrice = "100.005" },
		"bad tick":       func(c *Config) { c.Sim.TickSize = "0" },
		"zero step":      func(c *Config) { c.Sim.Step = 0 },
		"self trade":     func(c *Config) { c.Sim.SelfTrade = "maybe" },
		"cost method":    func(c *Config) { c.Sim.CostMethod = "lifo" },
		"maker size":     func(c *Config) { c.Maker.Size = 0 },
		"vwap profile": func(c *Config) {
			c.Taker.Parents = []ParentConfig{{Side: orderbook.Bid, Qty: 1, Schedule: "vwap"}}
		},
		"archive dir":  func(c *Config) { c.Storage.Archive = true },
		"kafka alone":  func(c *Config) { c.Kafka.Enabled = true },
		"kafka client": func(c *Config) {
			c.Storage.Archive, c.Storage.OutboxDir = true, "out"
			c.Kafka.Enabled, c.Kafka.Client = true, "franz"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))
		})
	}
}

func TestString(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.String(), "Seed:1")
}
