// Package ratelimit paces calls against the remote API. Normal calls get a
// short randomized delay; after an error the next Wait absorbs a much longer
// class-specific penalty before any further call goes out.
package ratelimit

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/knosm/pixisync/app/settings"
)

// Items processed between batch pauses.
const batchSize = 5

// DelayConfig supplies the delay ranges, in seconds. *settings.Store
// satisfies it.
type DelayConfig interface {
	GetFloat(key string, fallback float64) float64
}

type Limiter struct {
	config DelayConfig

	mu      sync.Mutex
	penalty time.Duration // consumed by the next Wait, then cleared
}

func NewLimiter(config DelayConfig) *Limiter {
	return &Limiter{config: config}
}

// Wait blocks for the current delay: the pending error penalty if one is
// queued, otherwise a randomized normal-range delay. Re-reads the configured
// ranges on every call so settings changes apply without a restart.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := l.penalty
	l.penalty = 0
	l.mu.Unlock()

	if delay == 0 {
		delay = l.randomDelay(settings.KeyAPIDelayMin, settings.KeyAPIDelayMax, 1.0, 3.0)
	}
	return sleep(ctx, delay)
}

// HandleError queues a penalty for the next Wait based on the response
// status. It never blocks; the caller decides when the next call happens.
func (l *Limiter) HandleError(statusCode int) {
	var delay time.Duration
	switch statusCode {
	case http.StatusTooManyRequests:
		delay = l.randomDelay(settings.KeyErrorDelay429Min, settings.KeyErrorDelay429Max, 30, 60)
	case http.StatusForbidden:
		delay = l.randomDelay(settings.KeyErrorDelay403Min, settings.KeyErrorDelay403Max, 30, 50)
	default:
		delay = l.randomDelay(settings.KeyErrorDelayOtherMin, settings.KeyErrorDelayOtherMax, 10, 30)
	}

	l.mu.Lock()
	if delay > l.penalty {
		l.penalty = delay
	}
	l.mu.Unlock()
}

// BatchWait inserts an extra normal-range pause after every fifth processed
// item. Strategies call it with their running item count.
func (l *Limiter) BatchWait(ctx context.Context, processed int) error {
	if processed == 0 || processed%batchSize != 0 {
		return nil
	}
	return sleep(ctx, l.randomDelay(settings.KeyAPIDelayMin, settings.KeyAPIDelayMax, 1.0, 3.0))
}

// Penalty reports the queued penalty without consuming it.
func (l *Limiter) Penalty() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.penalty
}

func (l *Limiter) randomDelay(minKey, maxKey string, minFallback, maxFallback float64) time.Duration {
	min := l.config.GetFloat(minKey, minFallback)
	max := l.config.GetFloat(maxKey, maxFallback)
	if max < min {
		max = min
	}
	seconds := min + rand.Float64()*(max-min)
	return time.Duration(seconds * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
