package infra

import (
	"sync"
	"time"
)

// Breaker stops an automatic action from being retried over and over while
// it keeps failing. After threshold consecutive failures it opens and rejects
// attempts until the cooldown has passed; then a single trial attempt is let through.
type Breaker struct {
	mu sync.RWMutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state            BreakerState
	consecutiveFails int
	lastFailure      time.Time
	probing          bool
}

// BreakerState is the current state of a breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // attempts allowed
	BreakerOpen                         // attempts rejected
	BreakerHalfOpen                     // one trial attempt allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown. Non-positive values fall back to
// 3 failures and 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     BreakerClosed,
	}
}

// Allow reports whether an attempt may run now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false

	case BreakerHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0
	b.state = BreakerClosed
	b.probing = false
}

// RecordFailure counts a failure and opens the breaker once the threshold is
// reached. A failed trial reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		if b.consecutiveFails >= b.threshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// RetryAt returns when an open breaker lets the next trial through. It is the
// zero time unless the breaker is open.
func (b *Breaker) RetryAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != BreakerOpen {
		return time.Time{}
	}
	return b.lastFailure.Add(b.cooldown)
}

// Stats returns breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BreakerStats{
		State:            b.state.String(),
		ConsecutiveFails: b.consecutiveFails,
		LastFailure:      b.lastFailure,
	}
}

// BreakerStats contains breaker statistics.
type BreakerStats struct {
	State            string    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	LastFailure      time.Time `json:"last_failure,omitempty"`
}
