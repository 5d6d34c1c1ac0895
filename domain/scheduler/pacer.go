package scheduler

import (
	"context"
	"time"
)

// Pacer throttles the loop between ticks. It never changes what a tick does.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NopPacer runs as fast as possible.
type NopPacer struct{}

func (NopPacer) Wait(ctx context.Context) error { return ctx.Err() }

// RealtimePacer spaces ticks step/speed apart in wall-clock time.
type RealtimePacer struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRealtimePacer(step time.Duration, speed float64) *RealtimePacer {
	if speed <= 0 {
		speed = 1
	}
	return &RealtimePacer{
		interval: time.Duration(float64(step) / speed),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (p *RealtimePacer) Interval() time.Duration { return p.interval }

func (p *RealtimePacer) Wait(ctx context.Context) error {
	now := p.now()
	if !p.last.IsZero() {
		if d := p.interval - now.Sub(p.last); d > 0 {
			if err := p.sleep(ctx, d); err != nil {
				return err
			}
			now = p.now()
		}
	}
	p.last = now
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
