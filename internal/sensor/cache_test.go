package sensor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func TestCacheSnapshotFreshness(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(5 * time.Second)
	c.Update(domain.SensorReading{SensorID: "GPS", Header: "$GPGGA", Data: "$GPGGA,1", ReceivedAt: t0})

	if snap := c.Snapshot(t0.Add(4 * time.Second)); len(snap) != 1 {
		t.Fatalf("expected reading at t=4 to be included, got %d", len(snap))
	}
	if snap := c.Snapshot(t0.Add(6 * time.Second)); len(snap) != 0 {
		t.Fatalf("expected reading at t=6 to be omitted, got %d", len(snap))
	}
}

func TestCacheTimeoutDisabled(t *testing.T) {
	t0 := time.Now()
	c := NewCache(-1)
	c.Update(domain.SensorReading{SensorID: "GPS", Header: "$GPGGA", ReceivedAt: t0})
	c.Update(domain.SensorReading{SensorID: "Depth", Header: "$SDDPT", ReceivedAt: t0.Add(-time.Hour)})

	if snap := c.Snapshot(t0.Add(24 * time.Hour)); len(snap) != 2 {
		t.Fatalf("expected all entries when timeout disabled, got %d", len(snap))
	}
}

func TestCacheLastWriteWins(t *testing.T) {
	t0 := time.Now()
	c := NewCache(time.Minute)
	c.Update(domain.SensorReading{SensorID: "GPS", Header: "$GPGGA", Data: "new", ReceivedAt: t0})
	// an older embedded timestamp still replaces the slot
	c.Update(domain.SensorReading{SensorID: "GPS", Header: "$GPGGA", Data: "late", ReceivedAt: t0.Add(-time.Second)})

	snap := c.Snapshot(t0)
	got := snap[domain.ChannelKey{SensorID: "GPS", Header: "$GPGGA"}]
	if got.Data != "late" {
		t.Fatalf("expected last delivered value, got %q", got.Data)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one slot, got %d", c.Len())
	}
}

func TestCacheSnapshotNeverStale(t *testing.T) {
	const timeout = 3 * time.Second
	base := time.Unix(1_700_000_000, 0)
	c := NewCache(timeout)
	for i := 0; i < 50; i++ {
		c.Update(domain.SensorReading{
			SensorID:   fmt.Sprintf("s%d", i%7),
			Header:     "H",
			ReceivedAt: base.Add(time.Duration(i) * 500 * time.Millisecond),
		})
		at := base.Add(time.Duration(i) * 700 * time.Millisecond)
		for _, r := range c.Snapshot(at) {
			age := at.Sub(r.ReceivedAt)
			if age < 0 {
				age = -age
			}
			if age > timeout {
				t.Fatalf("snapshot returned stale reading age=%s", age)
			}
		}
	}
}

func TestCacheConcurrentUpdateSnapshot(t *testing.T) {
	c := NewCache(-1)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Update(domain.SensorReading{
					SensorID: fmt.Sprintf("s%d", w),
					Header:   "H",
					Data:     fmt.Sprintf("%d", i),
				})
			}
		}(w)
	}
	for i := 0; i < 200; i++ {
		for _, r := range c.Snapshot(time.Now()).Readings() {
			if r.Header != "H" {
				t.Fatalf("observed partial entry %+v", r)
			}
		}
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Fatalf("expected 4 channels, got %d", c.Len())
	}
}
