package sensor

import (
	"sync"
	"time"
)

// Throttle limits asynchronous writes to one per interval per sensor.
type Throttle struct {
	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{lastWrite: make(map[string]time.Time)}
}

// Allow reports whether a datagram received at `at` may be persisted and
// records the write when it may.
func (t *Throttle) Allow(sensorID string, interval time.Duration, at time.Time) bool {
	if interval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.lastWrite[sensorID]; ok && at.Sub(last) < interval {
		return false
	}
	t.lastWrite[sensorID] = at
	return true
}
