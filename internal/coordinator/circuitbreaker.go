package coordinator

import (
	"sync"
	"time"
)

// CircuitBreaker suppresses further coordination attempts against a node
// that recently failed one, so a flapping node can't repeatedly trigger a
// rebalance cycle. It is per-node, not global: one node tripping the
// breaker never blocks action on another.
type CircuitBreaker struct {
	mu       sync.Mutex
	cooldown time.Duration
	trippedAt map[string]time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker that holds a trip for cooldown.
func NewCircuitBreaker(cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{cooldown: cooldown, trippedAt: map[string]time.Time{}, now: time.Now}
}

// Trip records a failed coordination attempt against nodeID.
func (b *CircuitBreaker) Trip(nodeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trippedAt[nodeID] = b.now()
}

// Allow reports whether coordination may proceed against nodeID right now.
func (b *CircuitBreaker) Allow(nodeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trippedAt[nodeID]
	if !ok {
		return true
	}
	if b.now().Sub(t) >= b.cooldown {
		delete(b.trippedAt, nodeID)
		return true
	}
	return false
}
