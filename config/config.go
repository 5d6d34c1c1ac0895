package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"lobsim/domain/agent"
	"lobsim/domain/orderbook"
	"lobsim/domain/pricing"
	"lobsim/strategy"
)

var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Sim       SimConfig
	Orderflow OrderflowConfig
	Maker     MakerConfig
	Taker     TakerConfig
	Storage   StorageConfig
	Kafka     KafkaConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

// SimConfig holds the core run parameters. Prices are decimal strings.
type SimConfig struct {
	Seed          int64
	Step          time.Duration
	Horizon       time.Duration
	TickSize      string
	InitialPrice  string
	SnapshotDepth int
	SnapshotEvery int64
	SelfTrade     string
	CostMethod    string
	Audit         bool
	// Speed paces the run at Speed× wall clock; zero runs unpaced.
	Speed float64

	Levels         int
	OrdersPerLevel int
	TotalOrders    int
	MinSize        int64
	MaxSize        int64
	WarmStart      string
}

// OrderflowConfig holds the background order-flow parameters
type OrderflowConfig struct {
	Rate        float64
	LimitBuy    float64
	LimitSell   float64
	MarketBuy   float64
	MarketSell  float64
	Cancel      float64
	SizeMu      float64
	SizeSigma   float64
	MinSize     int64
	MaxSize     int64
	PGeom       float64
	RPointMass  float64
	AlphaZipf   float64
	MaxDistance int64
	Drift       float64
}

// MakerConfig holds the market maker agent; Spread is in ticks
type MakerConfig struct {
	Enabled        bool
	Spread         int64
	Size           int64
	InventoryLimit int64
	Gamma          float64
	Interval       time.Duration
	Cash           string
}

// ParentConfig is one parent order of the taker
type ParentConfig struct {
	Start    time.Duration
	Side     orderbook.Side
	Qty      int64
	Schedule string
	CancelAt time.Duration
}

// TakerConfig holds the execution agent
type TakerConfig struct {
	Parents   []ParentConfig
	Intervals int
	Duration  time.Duration
	Profile   string
	Cash      string
}

// StorageConfig holds journal, checkpoint and archive locations. Empty
// directories disable the feature.
type StorageConfig struct {
	JournalDir      string
	SegmentSize     int64
	SyncEvery       int
	CheckpointDir   string
	CheckpointEvery int64
	Truncate        bool
	OutboxDir       string
	Archive         bool
}

// KafkaConfig holds the broadcaster settings
type KafkaConfig struct {
	Enabled    bool
	Client     string
	Brokers    []string
	Topic      string
	Interval   time.Duration
	MaxRetries int
}

// ServerConfig holds the optional result servers; empty addresses disable them
type ServerConfig struct {
	GRPCAddr string
	WSAddr   string
	// Linger keeps the servers up after the run finishes.
	Linger time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file, then LOBSIM_* environment variables.
// A malformed value falls back to its default; taker parents are the one
// exception since there is no sensible default to fall back to.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	taker, err := loadTakerConfig()
	if err != nil {
		return nil, err
	}
	return &Config{
		Sim:       loadSimConfig(),
		Orderflow: loadOrderflowConfig(),
		Maker:     loadMakerConfig(),
		Taker:     taker,
		Storage:   loadStorageConfig(),
		Kafka:     loadKafkaConfig(),
		Server:    loadServerConfig(),
		Logging:   loadLoggingConfig(),
	}, nil
}

func loadSimConfig() SimConfig {
	return SimConfig{
		Seed:           getEnvInt64("LOBSIM_SEED", 1),
		Step:           getEnvDuration("LOBSIM_STEP", time.Second),
		Horizon:        getEnvDuration("LOBSIM_HORIZON", time.Hour),
		TickSize:       getEnvString("LOBSIM_TICK_SIZE", "0.01"),
		InitialPrice:   getEnvString("LOBSIM_INITIAL_PRICE", "100.00"),
		SnapshotDepth:  getEnvInt("LOBSIM_SNAPSHOT_DEPTH", 10),
		SnapshotEvery:  getEnvInt64("LOBSIM_SNAPSHOT_EVERY", 1),
		SelfTrade:      getEnvString("LOBSIM_SELF_TRADE", "allow"),
		CostMethod:     getEnvString("LOBSIM_COST_METHOD", "average"),
		Audit:          getEnvBool("LOBSIM_AUDIT", false),
		Speed:          getEnvFloat("LOBSIM_SPEED", 0),
		Levels:         getEnvInt("LOBSIM_POP_LEVELS", 20),
		OrdersPerLevel: getEnvInt("LOBSIM_POP_ORDERS_PER_LEVEL", 5),
		TotalOrders:    getEnvInt("LOBSIM_POP_TOTAL_ORDERS", 0),
		MinSize:        getEnvInt64("LOBSIM_POP_MIN_SIZE", 1),
		MaxSize:        getEnvInt64("LOBSIM_POP_MAX_SIZE", 50),
		WarmStart:      getEnvString("LOBSIM_WARM_START", ""),
	}
}

func loadOrderflowConfig() OrderflowConfig {
	return OrderflowConfig{
		Rate:        getEnvFloat("LOBSIM_FLOW_RATE", 10),
		LimitBuy:    getEnvFloat("LOBSIM_FLOW_LIMIT_BUY", 0.3),
		LimitSell:   getEnvFloat("LOBSIM_FLOW_LIMIT_SELL", 0.3),
		MarketBuy:   getEnvFloat("LOBSIM_FLOW_MARKET_BUY", 0.175),
		MarketSell:  getEnvFloat("LOBSIM_FLOW_MARKET_SELL", 0.175),
		Cancel:      getEnvFloat("LOBSIM_FLOW_CANCEL", 0.05),
		SizeMu:      getEnvFloat("LOBSIM_FLOW_SIZE_MU", 1.0),
		SizeSigma:   getEnvFloat("LOBSIM_FLOW_SIZE_SIGMA", 0.5),
		MinSize:     getEnvInt64("LOBSIM_FLOW_MIN_SIZE", 1),
		MaxSize:     getEnvInt64("LOBSIM_FLOW_MAX_SIZE", 100),
		PGeom:       getEnvFloat("LOBSIM_FLOW_P_GEOM", 0.4),
		RPointMass:  getEnvFloat("LOBSIM_FLOW_R_POINTMASS", 0.9),
		AlphaZipf:   getEnvFloat("LOBSIM_FLOW_ALPHA_ZIPF", 1.45),
		MaxDistance: getEnvInt64("LOBSIM_FLOW_MAX_DISTANCE", 200),
		Drift:       getEnvFloat("LOBSIM_FLOW_DRIFT", 0.5),
	}
}

func loadMakerConfig() MakerConfig {
	return MakerConfig{
		Enabled:        getEnvBool("LOBSIM_MAKER_ENABLED", true),
		Spread:         getEnvInt64("LOBSIM_MAKER_SPREAD", 4),
		Size:           getEnvInt64("LOBSIM_MAKER_SIZE", 10),
		InventoryLimit: getEnvInt64("LOBSIM_MAKER_INVENTORY_LIMIT", 200),
		Gamma:          getEnvFloat("LOBSIM_MAKER_GAMMA", 0.01),
		Interval:       getEnvDuration("LOBSIM_MAKER_INTERVAL", 5*time.Second),
		Cash:           getEnvString("LOBSIM_MAKER_CASH", "1000000"),
	}
}

func loadTakerConfig() (TakerConfig, error) {
	parents, err := ParseParents(getEnvString("LOBSIM_TAKER_PARENTS", ""))
	if err != nil {
		return TakerConfig{}, err
	}
	return TakerConfig{
		Parents:   parents,
		Intervals: getEnvInt("LOBSIM_TAKER_INTERVALS", 10),
		Duration:  getEnvDuration("LOBSIM_TAKER_DURATION", 10*time.Minute),
		Profile:   getEnvString("LOBSIM_TAKER_PROFILE", ""),
		Cash:      getEnvString("LOBSIM_TAKER_CASH", "1000000"),
	}, nil
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		JournalDir:      getEnvString("LOBSIM_JOURNAL_DIR", ""),
		SegmentSize:     getEnvInt64("LOBSIM_JOURNAL_SEGMENT_SIZE", 64<<20),
		SyncEvery:       getEnvInt("LOBSIM_JOURNAL_SYNC_EVERY", 0),
		CheckpointDir:   getEnvString("LOBSIM_CHECKPOINT_DIR", ""),
		CheckpointEvery: getEnvInt64("LOBSIM_CHECKPOINT_EVERY", 0),
		Truncate:        getEnvBool("LOBSIM_CHECKPOINT_TRUNCATE", false),
		OutboxDir:       getEnvString("LOBSIM_OUTBOX_DIR", ""),
		Archive:         getEnvBool("LOBSIM_ARCHIVE", false),
	}
}

func loadKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:    getEnvBool("LOBSIM_KAFKA_ENABLED", false),
		Client:     getEnvString("LOBSIM_KAFKA_CLIENT", "sarama"),
		Brokers:    getEnvList("LOBSIM_KAFKA_BROKERS", []string{"localhost:9092"}),
		Topic:      getEnvString("LOBSIM_KAFKA_TOPIC", "lobsim.results"),
		Interval:   getEnvDuration("LOBSIM_KAFKA_INTERVAL", 250*time.Millisecond),
		MaxRetries: getEnvInt("LOBSIM_KAFKA_MAX_RETRIES", 5),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		GRPCAddr: getEnvString("LOBSIM_GRPC_ADDR", ""),
		WSAddr:   getEnvString("LOBSIM_WS_ADDR", ""),
		Linger:   getEnvDuration("LOBSIM_LINGER", 0),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  getEnvString("LOBSIM_LOG_LEVEL", "info"),
		Format: getEnvString("LOBSIM_LOG_FORMAT", "json"),
	}
}

// ParseParents reads parent orders separated by ';', each
// start:side:qty[:schedule[:cancelAt]], e.g. "60s:buy:500:twap;5m:sell:200".
func ParseParents(s string) ([]ParentConfig, error) {
	var out []ParentConfig
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		f := strings.Split(item, ":")
		if len(f) < 3 || len(f) > 5 {
			return nil, errors.Wrapf(ErrInvalid, "parent %q: want start:side:qty[:schedule[:cancelAt]]", item)
		}
		start, err := time.ParseDuration(f[0])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "parent %q: start: %v", item, err)
		}
		side, err := parseSide(f[1])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "parent %q: %v", item, err)
		}
		qty, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil || qty <= 0 {
			return nil, errors.Wrapf(ErrInvalid, "parent %q: quantity must be a positive integer", item)
		}
		p := ParentConfig{Start: start, Side: side, Qty: qty, Schedule: "block"}
		if len(f) > 3 && f[3] != "" {
			p.Schedule = strings.ToLower(f[3])
		}
		if len(f) > 4 {
			if p.CancelAt, err = time.ParseDuration(f[4]); err != nil {
				return nil, errors.Wrapf(ErrInvalid, "parent %q: cancel time: %v", item, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid", "b":
		return orderbook.Bid, nil
	case "sell", "ask", "s":
		return orderbook.Ask, nil
	}
	return orderbook.Bid, errors.Newf("unknown side %q", s)
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Scale derives the price grid from the tick size.
func (c *Config) Scale() (pricing.Scale, error) {
	tick, err := decimal.NewFromString(c.Sim.TickSize)
	if err != nil {
		return pricing.Scale{}, errors.Wrapf(ErrInvalid, "tick size %q: %v", c.Sim.TickSize, err)
	}
	px, err := pricing.NewScale(tick)
	if err != nil {
		return pricing.Scale{}, errors.Wrapf(ErrInvalid, "%v", err)
	}
	return px, nil
}

// InitialPriceUnits converts the initial price onto the tick grid.
func (c *Config) InitialPriceUnits(px pricing.Scale) (int64, error) {
	p, err := decimal.NewFromString(c.Sim.InitialPrice)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "initial price %q: %v", c.Sim.InitialPrice, err)
	}
	units, err := px.ToUnits(p)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "initial price: %v", err)
	}
	return units, nil
}

func (c *Config) SelfTradePolicy() (orderbook.SelfTradePolicy, error) {
	switch strings.ToLower(c.Sim.SelfTrade) {
	case "", "allow":
		return orderbook.SelfTradeAllow, nil
	case "skip", "prevent":
		return orderbook.SelfTradeSkip, nil
	}
	return orderbook.SelfTradeAllow, errors.Wrapf(ErrInvalid, "self trade policy %q", c.Sim.SelfTrade)
}

// Schedule builds the taker schedule named by p.
func (c *Config) Schedule(p ParentConfig) (strategy.Schedule, error) {
	profile, err := strategy.ParseProfile(c.Taker.Profile)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%v", err)
	}
	s, err := strategy.ParseSchedule(p.Schedule, c.Taker.Intervals, c.Taker.Duration, profile)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%v", err)
	}
	return s, nil
}

func parseCash(name, s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "%s cash %q: %v", name, s, err)
	}
	if d.IsNegative() {
		return errors.Wrapf(ErrInvalid, "%s cash %s must not be negative", name, s)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Sim.Step <= 0 || c.Sim.Horizon <= 0 {
		return errors.Wrapf(ErrInvalid, "step %s and horizon %s must be positive", c.Sim.Step, c.Sim.Horizon)
	}
	px, err := c.Scale()
	if err != nil {
		return err
	}
	if _, err := c.InitialPriceUnits(px); err != nil {
		return err
	}
	if _, err := c.SelfTradePolicy(); err != nil {
		return err
	}
	if _, err := agent.ParseCostMethod(strings.ToLower(c.Sim.CostMethod)); err != nil {
		return errors.Wrapf(ErrInvalid, "%v", err)
	}
	if c.Sim.Speed < 0 {
		return errors.Wrapf(ErrInvalid, "speed %v must not be negative", c.Sim.Speed)
	}
	if c.Sim.Levels > 0 && (c.Sim.MinSize < 1 || c.Sim.MaxSize < c.Sim.MinSize) {
		return errors.Wrapf(ErrInvalid, "population size range [%d, %d]", c.Sim.MinSize, c.Sim.MaxSize)
	}

	if c.Maker.Enabled {
		if c.Maker.Size <= 0 || c.Maker.Spread < 0 || c.Maker.Interval <= 0 {
			return errors.Wrap(ErrInvalid, "maker needs a positive size and interval and a non-negative spread")
		}
		if err := parseCash("maker", c.Maker.Cash); err != nil {
			return err
		}
	}
	if len(c.Taker.Parents) > 0 {
		if err := parseCash("taker", c.Taker.Cash); err != nil {
			return err
		}
		for _, p := range c.Taker.Parents {
			if _, err := c.Schedule(p); err != nil {
				return err
			}
		}
	}

	if c.Storage.Archive && c.Storage.OutboxDir == "" {
		return errors.Wrap(ErrInvalid, "archive needs an outbox directory")
	}
	if c.Kafka.Enabled {
		if !c.Storage.Archive {
			return errors.Wrap(ErrInvalid, "kafka broadcasting drains the archive; enable LOBSIM_ARCHIVE")
		}
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.Wrap(ErrInvalid, "kafka needs brokers and a topic")
		}
		switch c.Kafka.Client {
		case "sarama", "kafka-go":
		default:
			return errors.Wrapf(ErrInvalid, "kafka client %q", c.Kafka.Client)
		}
	}
	return nil
}

// String returns a safe string representation (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Sim{Seed:%d, Step:%s, Horizon:%s, Tick:%s, Price:%s, Speed:%v}, Maker{Enabled:%v}, Taker{Parents:%d}, Storage{Journal:%q, Outbox:%q}, Kafka{Enabled:%v, Topic:%s}, Server{GRPC:%q, WS:%q}",
		c.Sim.Seed, c.Sim.Step, c.Sim.Horizon, c.Sim.TickSize, c.Sim.InitialPrice, c.Sim.Speed,
		c.Maker.Enabled, len(c.Taker.Parents),
		c.Storage.JournalDir, c.Storage.OutboxDir,
		c.Kafka.Enabled, c.Kafka.Topic,
		c.Server.GRPCAddr, c.Server.WSAddr,
	)
}
