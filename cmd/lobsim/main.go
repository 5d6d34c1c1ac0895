package main

import (
	"context"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobsim/api/grpcserver"
	"lobsim/api/wsfeed"
	"lobsim/config"
	"lobsim/domain/scheduler"
	"lobsim/infra/kafka"
	"lobsim/infra/logging"
	"lobsim/infra/outbox"
	"lobsim/infra/wal"
	"lobsim/jobs/broadcaster"
	"lobsim/service"
	"lobsim/snapshot"
)

// lobsim runs one simulation as configured by LOBSIM_* variables.
// "lobsim replay" rebuilds the book from the journal instead.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	logger.Info("config loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if len(os.Args) > 1 && os.Args[1] == "replay" {
		err = replay(cfg, logger)
	} else {
		err = simulate(ctx, cfg, logger)
	}
	stop()
	if err != nil {
		logger.Error("exiting", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func simulate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// ---------------- Domain ----------------

	px, err := cfg.Scale()
	if err != nil {
		return err
	}
	sim, err := simConfig(cfg, px)
	if err != nil {
		return err
	}
	gen, err := generator(cfg, sim)
	if err != nil {
		return err
	}
	agents, err := agents(cfg, px)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(logger), service.WithScale(px)}

	// ---------------- Journal ----------------

	if cfg.Storage.JournalDir != "" {
		journal, err := wal.Open(wal.Config{
			Dir:         cfg.Storage.JournalDir,
			SegmentSize: cfg.Storage.SegmentSize,
			SyncEvery:   cfg.Storage.SyncEvery,
		})
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, service.WithJournal(journal))
	}
	if cfg.Storage.CheckpointDir != "" {
		opts = append(opts, service.WithCheckpoints(cfg.Storage.CheckpointDir, cfg.Storage.CheckpointEvery, cfg.Storage.Truncate))
	}
	if cfg.Sim.Speed > 0 {
		opts = append(opts, service.WithPacer(scheduler.NewRealtimePacer(cfg.Sim.Step, cfg.Sim.Speed)))
	}

	// ---------------- Servers ----------------

	var store *grpcserver.Store
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		store = grpcserver.NewStore()
		srv := grpcserver.New(store, logger)
		srv.Start(lis)
		defer srv.Stop()
		opts = append(opts, service.WithObserver(store))
		logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	}

	if cfg.Server.WSAddr != "" {
		feed := wsfeed.New(logger)
		httpSrv := &http.Server{
			Addr:              cfg.Server.WSAddr,
			Handler:           feed.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("websocket server", zap.Error(err))
			}
		}()
		defer func() {
			feed.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, service.WithObserver(feed))
		logger.Info("websocket listening", zap.String("addr", cfg.Server.WSAddr))
	}

	// ---------------- Run ----------------

	s, err := service.New(sim, rand.New(rand.NewSource(cfg.Sim.Seed)), gen, agents, opts...)
	if err != nil {
		return err
	}
	res, runErr := s.Run(ctx)
	if store != nil {
		store.Publish(res)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// ---------------- Archive ----------------

	if cfg.Storage.Archive {
		if err := archive(ctx, cfg, res, logger); err != nil {
			return err
		}
	}

	if cfg.Server.Linger > 0 && ctx.Err() == nil {
		logger.Info("serving results", zap.Duration("linger", cfg.Server.Linger))
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Server.Linger):
		}
	}
	return nil
}

func archive(ctx context.Context, cfg *config.Config, res *service.Result, logger *zap.Logger) error {
	ob, err := outbox.Open(cfg.Storage.OutboxDir)
	if err != nil {
		return err
	}
	defer ob.Close()

	n, err := service.Archive(ob, res)
	if err != nil {
		return err
	}
	logger.Info("results archived", zap.String("run", res.RunID), zap.Int("entries", n))

	// an interrupted run is archived but not broadcast
	if !cfg.Kafka.Enabled || ctx.Err() != nil {
		return nil
	}

	var pub broadcaster.Publisher
	if cfg.Kafka.Client == "kafka-go" {
		pub = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		if pub, err = broadcaster.NewSaramaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			return err
		}
	}
	b := broadcaster.New(ob, pub, broadcaster.Config{
		Interval:   cfg.Kafka.Interval,
		MaxRetries: uint32(max(cfg.Kafka.MaxRetries, 0)),
	}, logger)
	defer b.Close()

	acked, err := b.DrainOnce(ctx)
	logger.Info("results broadcast", zap.Int("acked", acked), zap.Int("entries", n))
	return err
}

func replay(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.JournalDir == "" {
		return errors.New("replay needs LOBSIM_JOURNAL_DIR")
	}
	px, err := cfg.Scale()
	if err != nil {
		return err
	}
	book, err := bookConfig(cfg, px)
	if err != nil {
		return err
	}

	var checkpoint string
	if cfg.Storage.CheckpointDir != "" {
		checkpoint = filepath.Join(cfg.Storage.CheckpointDir, snapshot.FileName)
	}
	out, err := service.Replay(cfg.Storage.JournalDir, checkpoint, book, logger)
	if err != nil {
		return err
	}

	top := out.Book.Top()
	logger.Info("journal replayed",
		zap.Uint64("last_seq", out.LastSeq),
		zap.Uint64("max_order_id", out.MaxOrderID),
		zap.Int("trades", len(out.Trades)),
		zap.Int("resting", out.Book.Len()),
		zap.Int64("best_bid", top.Bid),
		zap.Int64("best_ask", top.Ask),
	)
	return nil
}
