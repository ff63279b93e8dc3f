// Package ratelimit bounds outbound delivery throughput with a token
// bucket sized to the destination webhook's documented message rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket with lazy refill: tokens accrue as a function
// of elapsed time, computed inside Acquire rather than by a background
// timer, so an idle relay performs no wakeups. All state is guarded by a
// single mutex.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	now func() time.Time
}

// NewBucket creates a full Bucket with the given capacity and refill rate
// in tokens per second.
func NewBucket(capacity int, refillRate float64) *Bucket {
	b := &Bucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// PerMinute converts a messages-per-minute limit to a per-second refill rate.
func PerMinute(n float64) float64 {
	return n / 60
}

// Acquire blocks until one token can be debited or ctx is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		ok, wait := b.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire debits one token without blocking, reporting success.
func (b *Bucket) TryAcquire() bool {
	ok, _ := b.tryAcquire()
	return ok
}

// tryAcquire refills from elapsed time, then either debits a token or
// returns the duration until the next token accrues.
func (b *Bucket) tryAcquire() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.refillRate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}
