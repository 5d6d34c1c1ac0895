package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"lobsim/config"
	"lobsim/domain/agent"
	"lobsim/domain/orderbook"
	"lobsim/domain/orderflow"
	"lobsim/domain/pricing"
	"lobsim/infra/memory"
	"lobsim/service"
	"lobsim/strategy"
)

const (
	makerID = "maker"
	takerID = "taker"
)

func bookConfig(cfg *config.Config, px pricing.Scale) (orderbook.Config, error) {
	policy, err := cfg.SelfTradePolicy()
	if err != nil {
		return orderbook.Config{}, err
	}
	return orderbook.Config{
		TickSize:    px.Tick,
		SelfTrade:   policy,
		VerifyIndex: cfg.Sim.Audit,
		Alloc:       memory.NewPool(func() *orderbook.Order { return new(orderbook.Order) }),
	}, nil
}

func simConfig(cfg *config.Config, px pricing.Scale) (service.Config, error) {
	price, err := cfg.InitialPriceUnits(px)
	if err != nil {
		return service.Config{}, err
	}
	book, err := bookConfig(cfg, px)
	if err != nil {
		return service.Config{}, err
	}
	return service.Config{
		Book:         book,
		Step:         cfg.Sim.Step,
		Horizon:      cfg.Sim.Horizon,
		InitialPrice: price,
		Population: service.Population{
			Levels:         cfg.Sim.Levels,
			OrdersPerLevel: cfg.Sim.OrdersPerLevel,
			TotalOrders:    cfg.Sim.TotalOrders,
			MinSize:        cfg.Sim.MinSize,
			MaxSize:        cfg.Sim.MaxSize,
			Checkpoint:     cfg.Sim.WarmStart,
		},
		SnapshotDepth: cfg.Sim.SnapshotDepth,
		SnapshotEvery: cfg.Sim.SnapshotEvery,
		Seed:          cfg.Sim.Seed,
		Audit:         cfg.Sim.Audit,
	}, nil
}

func generator(cfg *config.Config, sim service.Config) (*orderflow.Poisson, error) {
	f := cfg.Orderflow
	p := orderflow.DefaultParams(sim.InitialPrice, sim.Book.TickSize)
	p.ArrivalRate = f.Rate
	p.Mix = orderflow.Mix{
		LimitBuy:   f.LimitBuy,
		LimitSell:  f.LimitSell,
		MarketBuy:  f.MarketBuy,
		MarketSell: f.MarketSell,
		Cancel:     f.Cancel,
	}
	p.SizeMu, p.SizeSigma = f.SizeMu, f.SizeSigma
	p.MinSize, p.MaxSize = f.MinSize, f.MaxSize
	p.PGeom, p.RPointMass, p.AlphaZipf = f.PGeom, f.RPointMass, f.AlphaZipf
	p.MaxDistance, p.Drift = f.MaxDistance, f.Drift
	return orderflow.NewPoisson(p)
}

// agents builds the maker and taker in that order; registration order is
// the order they act in.
func agents(cfg *config.Config, px pricing.Scale) ([]agent.Agent, error) {
	method, err := agent.ParseCostMethod(strings.ToLower(cfg.Sim.CostMethod))
	if err != nil {
		return nil, err
	}

	var out []agent.Agent
	if cfg.Maker.Enabled {
		cash, err := decimal.NewFromString(cfg.Maker.Cash)
		if err != nil {
			return nil, errors.Wrap(err, "maker cash")
		}
		acct := agent.NewAccount(makerID, cash, 0, decimal.Zero, method)
		out = append(out, strategy.NewMaker(makerID, acct, strategy.MakerConfig{
			Spread:         cfg.Maker.Spread * px.Tick,
			Size:           cfg.Maker.Size,
			InventoryLimit: cfg.Maker.InventoryLimit,
			Gamma:          cfg.Maker.Gamma,
			Interval:       cfg.Maker.Interval,
			Tick:           px.Tick,
		}))
	}

	if len(cfg.Taker.Parents) > 0 {
		cash, err := decimal.NewFromString(cfg.Taker.Cash)
		if err != nil {
			return nil, errors.Wrap(err, "taker cash")
		}
		specs := make([]strategy.ParentSpec, 0, len(cfg.Taker.Parents))
		for _, p := range cfg.Taker.Parents {
			sched, err := cfg.Schedule(p)
			if err != nil {
				return nil, err
			}
			specs = append(specs, strategy.ParentSpec{
				Start:    p.Start,
				Side:     p.Side,
				Qty:      p.Qty,
				Schedule: sched,
				CancelAt: p.CancelAt,
			})
		}
		acct := agent.NewAccount(takerID, cash, 0, decimal.Zero, method)
		out = append(out, strategy.NewTaker(takerID, acct, specs...))
	}
	return out, nil
}
