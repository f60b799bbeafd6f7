// Package worker runs background jobs of the seat hold engine.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maxPassesPerTick bounds how many full batches one tick drains.
const maxPassesPerTick = 10

// HoldExpirer releases lapsed holds.
type HoldExpirer interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

// HoldSweeper periodically returns lapsed holds to available.  Reads and
// writes already treat lapsed holds as free; the sweep makes the state
// table and subscribers catch up for seats nobody touches.
type HoldSweeper struct {
	expirer  HoldExpirer
	interval time.Duration
	batch    int
	log      *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewHoldSweeper(e HoldExpirer, interval time.Duration, batch int, log *zap.Logger) *HoldSweeper {
	return &HoldSweeper{
		expirer:  e,
		interval: interval,
		batch:    batch,
		log:      log.With(zap.String("component", "hold_sweeper")),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *HoldSweeper) Start(ctx context.Context) {
	s.log.Info("hold sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch", s.batch),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("hold sweeper stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.log.Info("hold sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop ends Start and waits for the current sweep to finish.
func (s *HoldSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep keeps going while whole batches come back, so a backlog clears
// within one tick.
func (s *HoldSweeper) sweep(ctx context.Context) {
	total := 0
	for pass := 0; pass < maxPassesPerTick; pass++ {
		n, err := s.expirer.Sweep(ctx, s.batch)
		if err != nil {
			s.log.Error("hold sweep failed", zap.Error(err))
			break
		}
		total += n
		if n < s.batch || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		s.log.Info("expired holds released", zap.Int("seats", total))
	} else {
		s.log.Debug("no expired holds")
	}
}
