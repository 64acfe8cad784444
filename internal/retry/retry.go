// Package retry wraps startup-time connection attempts with jittered
// exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

type Config struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		InitialWait: 250 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// WithBackoff runs fn until it succeeds, attempts run out, or the context is
// cancelled. The last error is returned when all attempts fail.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffWait(cfg, attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func backoffWait(cfg Config, attempt int) time.Duration {
	base := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt))
	wait := base + rand.Float64()*base*0.3
	if wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}
	return time.Duration(wait)
}
