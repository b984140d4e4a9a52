// Package concurrency runs the background loops of the service.
package concurrency

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes reservations settled or expired before now-retention.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

// Sweeper periodically prunes old reservations. It is housekeeping only:
// failures are logged and the loop keeps going.
type Sweeper struct {
	log       *zap.Logger
	pruner    Pruner
	interval  time.Duration
	retention time.Duration
}

// NewSweeper returns a sweeper; a non-positive interval defaults to 5m.
func NewSweeper(log *zap.Logger, pruner Pruner, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{log: log.Named("sweeper"), pruner: pruner, interval: interval, retention: retention}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.pruner.Prune(ctx, s.retention)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
	case err != nil:
		s.log.Warn("prune failed", zap.Error(err))
	case n > 0:
		s.log.Debug("pruned", zap.Int("count", n))
	}
}
