package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lobsim/domain/agent"
	"lobsim/domain/event"
	"lobsim/domain/metrics"
	"lobsim/domain/orderbook"
	"lobsim/domain/orderflow"
	"lobsim/domain/pricing"
	"lobsim/domain/scheduler"
	"lobsim/infra/sequence"
	"lobsim/infra/wal"
	"lobsim/snapshot"
)

// runNamespace scopes run ids; equal configurations get equal ids.
var runNamespace = uuid.MustParse("9b3c5d0e-2f41-5a7c-8e6d-4b1a0c3f7e92")

// Journal records every accepted submission and effective cancel.
// *wal.WAL satisfies it.
type Journal interface {
	Append(*wal.Record) error
	LastSeq() uint64
}

// Observer sees every tick after it is fully applied. Observers get copies
// and must not block.
type Observer interface {
	OnTick(snap metrics.BookSnapshot, trades []orderbook.Trade)
}

type Counters struct {
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
}

type Result struct {
	RunID        string                 `json:"run_id"`
	Trades       []orderbook.Trade      `json:"trades"`
	Snapshots    []metrics.BookSnapshot `json:"snapshots"`
	AgentRecords []metrics.AgentRecord  `json:"agent_records"`
	Summary      metrics.Summary        `json:"summary"`
	Counters     Counters               `json:"counters"`
}

type orderMeta struct {
	ref      uint64
	refPrice int64
}

type Simulator struct {
	cfg    Config
	rng    *rand.Rand
	gen    orderflow.Generator
	agents []agent.Agent
	byID   map[string]agent.Agent

	book  *orderbook.OrderBook
	clock *scheduler.Scheduler
	seq   *sequence.Sequencer
	rec   *metrics.Recorder
	px    pricing.Scale

	log        *zap.Logger
	journal    Journal
	pacer      scheduler.Pacer
	observers  []Observer
	checkpoint *checkpointer

	runID     string
	meta      map[uint64]orderMeta
	trades    []orderbook.Trade
	tick      []orderbook.Trade
	counters  Counters
	populated bool
}

type Option func(*Simulator)

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

func WithJournal(j Journal) Option {
	return func(s *Simulator) { s.journal = j }
}

func WithPacer(p scheduler.Pacer) Option {
	return func(s *Simulator) { s.pacer = p }
}

func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

// WithScale sets the decimal meaning of a price unit, used for cash and
// PnL. The default treats one unit as one currency unit.
func WithScale(px pricing.Scale) Option {
	return func(s *Simulator) { s.px = px }
}

// WithCheckpoints writes a book checkpoint to dir every `every` ticks and
// once more when the run ends. With truncate set, journal segments the
// checkpoint covers are removed.
func WithCheckpoints(dir string, every int64, truncate bool) Option {
	return func(s *Simulator) {
		s.checkpoint = &checkpointer{w: &snapshot.Writer{Dir: dir}, every: every, truncate: truncate}
	}
}

// New wires a simulator. Agent ids must be unique and non-empty; the empty
// owner is reserved for background flow. rng is the only source of
// randomness for the whole run.
func New(cfg Config, rng *rand.Rand, gen orderflow.Generator, agents []agent.Agent, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "rng is required")
	}
	clock, err := scheduler.New(cfg.Step, cfg.Horizon)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:    cfg,
		rng:    rng,
		gen:    gen,
		agents: agents,
		byID:   make(map[string]agent.Agent, len(agents)),
		book:   orderbook.NewOrderBook(cfg.Book),
		clock:  clock,
		seq:    sequence.New(0),
		px:     pricing.Scale{Tick: max(cfg.Book.TickSize, 1)},
		log:    zap.NewNop(),
		pacer:  scheduler.NopPacer{},
		meta:   make(map[uint64]orderMeta),
	}
	for _, a := range agents {
		id := a.ID()
		if id == "" {
			return nil, errors.Wrap(ErrInvalidConfig, "agent id must not be empty")
		}
		if _, dup := s.byID[id]; dup {
			return nil, errors.Wrapf(ErrInvalidConfig, "duplicate agent id %q", id)
		}
		s.byID[id] = a
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rec = metrics.NewRecorder(s.px, cfg.SnapshotEvery)
	s.runID = RunID(cfg, len(agents))
	s.log = s.log.Named("sim").With(zap.String("run", s.runID))
	return s, nil
}

// RunID derives a stable id from the parameters that shape a run.
func RunID(cfg Config, agents int) string {
	name := fmt.Sprintf("lobsim:seed=%d:step=%s:horizon=%s:price=%d:tick=%d:agents=%d",
		cfg.Seed, cfg.Step, cfg.Horizon, cfg.InitialPrice, cfg.Book.TickSize, agents)
	return uuid.NewSHA1(runNamespace, []byte(name)).String()
}

func (s *Simulator) RunID() string { return s.runID }

// Book exposes the live book. Only the loop may mutate it.
func (s *Simulator) Book() *orderbook.OrderBook { return s.book }

// Run drives the loop to the horizon. On a fatal error or a cancelled
// context it returns what was recorded so far together with the error.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if !s.populated {
		if err := s.Populate(); err != nil {
			return s.result(), err
		}
	}
	s.log.Info("run started",
		zap.Duration("step", s.cfg.Step),
		zap.Duration("horizon", s.cfg.Horizon),
		zap.Int64("ticks", s.clock.Ticks()),
		zap.Int("agents", len(s.agents)),
		zap.Int("resting", s.book.Len()),
	)

	// the pacer only waits before a tick that will run, never after the last
	for s.clock.Advance() {
		if err := s.pacer.Wait(ctx); err != nil {
			s.log.Warn("run interrupted", zap.Int64("tick", s.clock.Window().Index), zap.Error(err))
			return s.finish(), err
		}
		if err := s.step(); err != nil {
			s.log.Error("run halted", zap.Int64("tick", s.clock.Window().Index), zap.Error(err))
			return s.finish(), err
		}
	}

	res := s.finish()
	if s.checkpoint != nil {
		if err := s.checkpoint.write(s, s.clock.Window().End); err != nil {
			return res, err
		}
	}
	s.logSummary(res.Summary)
	return res, nil
}

func (s *Simulator) step() error {
	w := s.clock.Window()
	s.tick = s.tick[:0]

	var noise []event.Event
	if s.gen != nil {
		noise = s.gen.Generate(w, s.book.Top(), s.rng)
	}

	due := make(map[string][]scheduler.Timer)
	for _, t := range s.clock.Due() {
		due[t.Owner] = append(due[t.Owner], t)
	}

	view := s.book.Snapshot(s.cfg.SnapshotDepth)
	batches := make([][]event.Event, len(s.agents))
	for i, a := range s.agents {
		batches[i] = a.Act(agent.Env{
			Window: w,
			Book:   view,
			Due:    due[a.ID()],
			Timers: agentTimers{s: s.clock, owner: a.ID()},
			Rand:   s.rng,
		})
	}

	for _, ev := range noise {
		ev.Owner = ""
		if err := s.apply(w, ev, nil); err != nil {
			return err
		}
	}
	for i, a := range s.agents {
		for _, ev := range batches[i] {
			ev.Owner = a.ID()
			if err := s.apply(w, ev, a); err != nil {
				return err
			}
		}
	}

	if s.cfg.Audit {
		if err := s.book.CheckInvariants(); err != nil {
			return err
		}
	}

	snap, _ := s.rec.Capture(w, s.book.Snapshot(s.cfg.SnapshotDepth))
	if len(s.observers) > 0 {
		trades := append([]orderbook.Trade(nil), s.tick...)
		for _, o := range s.observers {
			o.OnTick(snap, trades)
		}
	}

	if s.checkpoint != nil && s.checkpoint.due(w.Index) {
		return s.checkpoint.write(s, w.End)
	}
	return nil
}

func (s *Simulator) finish() *Result {
	res := s.result()
	accounts := make([]*agent.Account, 0, len(s.agents))
	for _, a := range s.agents {
		accounts = append(accounts, a.Account())
	}
	res.Summary = s.rec.Summary(accounts)
	return res
}

func (s *Simulator) result() *Result {
	return &Result{
		RunID:        s.runID,
		Trades:       s.trades,
		Snapshots:    s.rec.Snapshots(),
		AgentRecords: s.rec.AgentRecords(),
		Counters:     s.counters,
	}
}

func (s *Simulator) logSummary(sum metrics.Summary) {
	s.log.Info("run finished",
		zap.Int("ticks", sum.Ticks),
		zap.Int("trades", sum.Trades),
		zap.Int64("volume", sum.Volume),
		zap.Float64("return", sum.Return),
		zap.Float64("volatility", sum.Volatility),
		zap.Float64("sharpe", sum.Sharpe),
		zap.Float64("max_drawdown", sum.MaxDrawdown),
		zap.Float64("one_sided", sum.OneSidedPct),
	)
	for _, a := range sum.Agents {
		s.log.Info("agent result",
			zap.String("agent", a.Agent),
			zap.Int("fills", a.Fills),
			zap.Int64("inventory", a.Inventory),
			zap.Stringer("total_pnl", a.Total),
			zap.Stringer("avg_slippage", a.AvgSlippage),
		)
	}
}

func (s *Simulator) fallbackMark() decimal.Decimal {
	return s.px.ToDecimal(s.cfg.InitialPrice)
}

type agentTimers struct {
	s     *scheduler.Scheduler
	owner string
}

func (t agentTimers) Schedule(at time.Duration, tag uint64) scheduler.TimerID {
	return t.s.Schedule(t.owner, at, tag)
}

func (t agentTimers) Cancel(id scheduler.TimerID) bool {
	return t.s.Cancel(t.owner, id)
}
