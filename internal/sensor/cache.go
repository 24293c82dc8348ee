package sensor

import (
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// Snapshot is a point-in-time view of the synchronization cache.
type Snapshot map[domain.ChannelKey]domain.SensorReading

// Readings returns the snapshot ordered by sensor and header.
func (s Snapshot) Readings() []domain.SensorReading {
	if len(s) == 0 {
		return nil
	}
	out := make([]domain.SensorReading, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SensorID != out[j].SensorID {
			return out[i].SensorID < out[j].SensorID
		}
		return out[i].Header < out[j].Header
	})
	return out
}

// Cache holds the latest synchronous reading per sensor header.
type Cache struct {
	mu       sync.RWMutex
	entries  map[domain.ChannelKey]domain.SensorReading
	timeout  time.Duration
	disabled bool
}

// NewCache builds a cache. A negative timeout disables freshness checks.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{
		entries:  make(map[domain.ChannelKey]domain.SensorReading),
		timeout:  timeout,
		disabled: timeout < 0,
	}
}

// Update replaces the slot of r unconditionally; the last delivery wins.
func (c *Cache) Update(r domain.SensorReading) {
	c.mu.Lock()
	c.entries[r.Key()] = r
	c.mu.Unlock()
}

// Snapshot returns the entries fresh relative to at.
func (c *Cache) Snapshot(at time.Time) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(Snapshot, len(c.entries))
	for k, r := range c.entries {
		if c.disabled || fresh(at.Sub(r.ReceivedAt), c.timeout) {
			out[k] = r
		}
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Readings that arrive after the tick instant are judged by absolute age.
func fresh(age, timeout time.Duration) bool {
	if age < 0 {
		age = -age
	}
	return age <= timeout
}
