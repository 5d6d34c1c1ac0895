// Package broadcaster drains the run outbox to Kafka: every NEW entry is
// marked SENT, published, then ACKED. A failed publish puts the entry back
// to NEW for the next pass.
package broadcaster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lobsim/infra/outbox"
)

type Config struct {
	Interval   time.Duration
	MaxRetries uint32
	// DeleteAcked drops entries once the broker acknowledged them.
	DeleteAcked bool
}

type Broadcaster struct {
	outbox *outbox.Outbox
	pub    Publisher
	cfg    Config
	log    *zap.Logger
}

func New(ob *outbox.Outbox, pub Publisher, cfg Config, log *zap.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{outbox: ob, pub: pub, cfg: cfg, log: log.Named("broadcaster")}
}

// Start runs the drain loop until ctx is done.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("started", zap.Duration("interval", b.cfg.Interval))

	go func() {
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := b.DrainOnce(ctx); err != nil {
					b.log.Warn("drain failed", zap.Error(err))
				}
			}
		}
	}()
}

// DrainOnce publishes every NEW entry and reports how many were acked.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	var pending []outbox.Entry
	if err := b.outbox.ScanByState(outbox.StateNew, func(e outbox.Entry) error {
		pending = append(pending, e)
		return nil
	}); err != nil {
		return 0, err
	}

	acked := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return acked, err
		}
		if err := b.outbox.MarkSent(e.Key); err != nil {
			return acked, err
		}
		if err := b.pub.Publish(ctx, []byte(e.Key), e.Payload); err != nil {
			b.log.Debug("publish failed", zap.String("key", e.Key), zap.Uint32("retries", e.Retries), zap.Error(err))
			if err := b.outbox.MarkFailed(e.Key, b.cfg.MaxRetries); err != nil {
				return acked, err
			}
			continue
		}
		if b.cfg.DeleteAcked {
			if err := b.outbox.Delete(e.Key); err != nil {
				return acked, err
			}
		} else if err := b.outbox.MarkAcked(e.Key); err != nil {
			return acked, err
		}
		acked++
	}
	if acked > 0 {
		b.log.Debug("drained", zap.Int("acked", acked), zap.Int("pending", len(pending)))
	}
	return acked, nil
}

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
