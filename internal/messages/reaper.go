package messages

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically deletes expired messages. Visibility does not depend on
// it (reads filter expired rows themselves); it only reclaims storage.
type Reaper struct {
	repo     *Repository
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}

	// OnReaped, when set, observes how many rows each sweep removed.
	OnReaped func(count int64)
}

func NewReaper(repo *Repository, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		repo:     repo,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			reaped, err := r.repo.ReapExpired(sweepCtx)
			cancel()

			if err != nil {
				r.logger.Warn("expired message sweep failed", zap.Error(err))
				continue
			}
			if reaped > 0 {
				r.logger.Info("reaped expired messages", zap.Int64("count", reaped))
				if r.OnReaped != nil {
					r.OnReaped(reaped)
				}
			}

		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

func (r *Reaper) Stop() {
	close(r.done)
}
