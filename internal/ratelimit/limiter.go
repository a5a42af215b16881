// Package ratelimit provides a FIFO admission queue that releases at most one
// caller per interval, derived from a requests-per-second budget.
//
// Separate Limiter instances are expected per upstream endpoint class, since
// the catalog enforces different budgets for bulk listing and per-entity detail
// calls.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCleared is returned to callers that were waiting when Clear was called.
var ErrCleared = errors.New("rate limiter queue cleared")

type waiter struct {
	ready chan error
}

// Limiter serializes callers against a fixed QPS budget.
// It is safe for concurrent use. A single drain goroutine is active while the
// queue is non-empty and exits as soon as it drains.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	queue    []*waiter
	draining bool
	wake     chan struct{}
}

// New creates a Limiter for the given requests-per-second budget.
// A non-positive qps disables throttling.
func New(qps float64) *Limiter {
	return &Limiter{
		interval: intervalFor(qps),
		wake:     make(chan struct{}, 1),
	}
}

func intervalFor(qps float64) time.Duration {
	if qps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / qps)
}

// Wait blocks until the caller is admitted. Callers are admitted in arrival
// order, one per interval. If ctx is cancelled before admission the caller is
// removed from the queue and ctx.Err() is returned.
func (l *Limiter) Wait(ctx context.Context) error {
	w := &waiter{ready: make(chan error, 1)}

	l.mu.Lock()
	l.queue = append(l.queue, w)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
		if !l.remove(w) {
			// Already admitted; the slot is spent either way.
			<-w.ready
		}
		return ctx.Err()
	}
}

// UpdateQPS changes the interval used for subsequent admissions. Queued
// callers keep their order.
func (l *Limiter) UpdateQPS(qps float64) {
	l.mu.Lock()
	l.interval = intervalFor(qps)
	l.mu.Unlock()
	l.signal()
}

// Interval reports the current minimum spacing between admissions.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Clear discards all pending callers. Each of them returns ErrCleared.
func (l *Limiter) Clear() {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, w := range pending {
		w.ready <- ErrCleared
	}
	l.signal()
}

// signal interrupts a sleeping drain loop so it re-reads the queue and interval.
func (l *Limiter) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// QueueLength reports the number of callers waiting for admission.
func (l *Limiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Limiter) remove(target *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		wait := l.interval - time.Since(l.last)
		l.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-l.wake:
				timer.Stop()
			}
			continue
		}

		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.last = time.Now()
		l.mu.Unlock()

		w.ready <- nil
	}
}
