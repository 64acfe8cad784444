package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/societynet/societychat/internal/infra/cache"
)

// Limiter throttles message sends per user. With redis available it uses a
// shared fixed-window counter; otherwise it falls back to in-process token
// buckets.
type Limiter struct {
	cache             *cache.Cache
	enabled           bool
	messagesPerMinute int
	burst             int
	localCache        map[string]*rate.Limiter
	mu                sync.Mutex
	cleanupDone       chan struct{}
}

func NewLimiter(c *cache.Cache, messagesPerMinute, burst int, enabled bool) *Limiter {
	l := &Limiter{
		cache:             c,
		enabled:           enabled,
		messagesPerMinute: messagesPerMinute,
		burst:             burst,
		localCache:        make(map[string]*rate.Limiter),
		cleanupDone:       make(chan struct{}),
	}

	if enabled {
		go l.cleanup()
	}

	return l
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.enabled {
		return true, nil
	}

	if l.cache != nil {
		return l.allowRedis(ctx, key)
	}

	return l.allowLocal(key), nil
}

func (l *Limiter) allowLocal(key string) bool {
	l.mu.Lock()
	limiter, exists := l.localCache[key]
	if !exists {
		limit := rate.Limit(float64(l.messagesPerMinute) / 60.0)
		limiter = rate.NewLimiter(limit, l.burst)
		l.localCache[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *Limiter) allowRedis(ctx context.Context, key string) (bool, error) {
	cacheKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.cache.Incr(ctx, cacheKey)
	if err != nil {
		return l.allowLocal(key), nil
	}

	if count == 1 {
		_ = l.cache.Expire(ctx, cacheKey, time.Minute)
	}

	if count > int64(l.messagesPerMinute) {
		return false, nil
	}

	return true, nil
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			l.localCache = make(map[string]*rate.Limiter)
			l.mu.Unlock()
		case <-l.cleanupDone:
			return
		}
	}
}

func (l *Limiter) Close() {
	close(l.cleanupDone)
}
