package modelservice

import (
	"sync"
	"time"
)

// CircuitBreaker tracks consecutive core-model call failures. State lives
// wherever the caller embeds it (MemoryService owns one instance per spec
// §5's "Shared-resource policy": circuit-breaker state lives in
// MemoryService, not globally).
type CircuitBreaker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
	threshold           int
	openDuration        time.Duration
}

// NewCircuitBreaker builds a breaker that opens after threshold
// consecutive failures for openDuration.
func NewCircuitBreaker(threshold int, openDuration time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 60 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, openDuration: openDuration}
}

// Allow reports whether a call may proceed right now.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.After(b.openUntil)
}

// RecordSuccess resets the consecutive-failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// RecordFailure increments the counter and opens the breaker once the
// threshold is reached.
func (b *CircuitBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.openUntil = now.Add(b.openDuration)
	}
}

// RecordCancellation is a no-op: a cancelled call does not affect the
// breaker, per spec §5's cancellation semantics.
func (b *CircuitBreaker) RecordCancellation() {}
