package gateway

import (
	"sync"
	"time"
)

const (
	backoffBase    = time.Second
	backoffCeiling = time.Minute
)

// reconnector computes the delay before reopening after a failed
// connection cycle: base * 2^attempt, capped at the ceiling. The attempt
// counter resets on every successful Ready/Resumed so an occasional
// disconnect in a long running process does not grow the delay forever.
type reconnector struct {
	mu      sync.Mutex
	attempt int
	base    time.Duration
	ceiling time.Duration
}

func newReconnector() *reconnector {
	return &reconnector{base: backoffBase, ceiling: backoffCeiling}
}

func (r *reconnector) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	delay := r.base << r.attempt
	if r.attempt > 30 || delay > r.ceiling || delay <= 0 {
		delay = r.ceiling
	}
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}

func (r *reconnector) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// canResume reports whether a prior session can be replayed: both the
// session id and a sequence number must survive, and the closure must
// not have been requested by the caller.
func canResume(sessionID string, sequence int64, requestedByCaller bool) bool {
	return sessionID != "" && sequence >= 0 && !requestedByCaller
}
