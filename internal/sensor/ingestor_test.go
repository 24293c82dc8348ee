package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

func TestIngestorAsyncThrottle(t *testing.T) {
	c := NewClassifier([]Channel{{
		Name:            "CTD",
		Type:            domain.SensorAsynchronous,
		LoggingInterval: time.Second,
	}}, domain.SensorSynchronous)
	rec := &mockRecords{}
	obs := &mockObs{}
	live := &mockLive{}
	in := NewIngestor(c, NewCache(5*time.Second), rec, obs, WithLive(live))

	t0 := time.Now()
	for i := 0; i < 10; i++ {
		in.Handle(domain.RawLine{
			SensorID:   "CTD",
			Data:       []byte("$CTD,12.1,35.0"),
			ReceivedAt: t0.Add(time.Duration(i) * 20 * time.Millisecond),
		})
	}

	if got := len(rec.all()); got != 1 {
		t.Fatalf("expected exactly one persisted async write, got %d", got)
	}
	if live.sensors.Load() != 10 {
		t.Fatalf("expected all datagrams on the live path, got %d", live.sensors.Load())
	}

	in.Handle(domain.RawLine{SensorID: "CTD", Data: []byte("$CTD,1"), ReceivedAt: t0.Add(1100 * time.Millisecond)})
	if got := len(rec.all()); got != 2 {
		t.Fatalf("expected a second write after the interval, got %d", got)
	}
}

func TestIngestorRoutesSyncAndIgnored(t *testing.T) {
	c := NewClassifier([]Channel{{
		Name:          "GPS",
		IgnoreHeaders: []string{"$GPGSV"},
	}}, domain.SensorSynchronous)
	cache := NewCache(time.Minute)
	rec := &mockRecords{}
	obs := &mockObs{}
	in := NewIngestor(c, cache, rec, obs)

	now := time.Now()
	in.Handle(domain.RawLine{SensorID: "GPS", Data: []byte("$GPGGA,1"), ReceivedAt: now})
	in.Handle(domain.RawLine{SensorID: "GPS", Data: []byte("$GPGSV,1"), ReceivedAt: now})
	in.Handle(domain.RawLine{SensorID: "GPS", Data: []byte{0xff}, ReceivedAt: now})
	in.Handle(domain.RawLine{SensorID: "GPS", Data: []byte("$GPZDA,2"), ReceivedAt: now})

	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached headers, got %d", cache.Len())
	}
	if len(rec.all()) != 0 {
		t.Fatalf("sync data must not be written directly")
	}
	if obs.counter("camflow_sensor_ignored_total") != 1 {
		t.Fatalf("expected one ignored event")
	}
	if obs.counter("camflow_sensor_parse_errors_total") != 1 {
		t.Fatalf("expected one parse error")
	}
}

func TestIngestorReconnectsFailingSource(t *testing.T) {
	c := NewClassifier([]Channel{{Name: "GPS"}}, domain.SensorSynchronous)
	cache := NewCache(-1)
	in := NewIngestor(c, cache, &mockRecords{}, &mockObs{}, WithBackoff(time.Millisecond, 5*time.Millisecond))

	src := &flakySource{failures: 3}
	ctx, cancel := context.WithCancel(context.Background())
	in.Start(ctx, src)

	deadline := time.Now().Add(2 * time.Second)
	for cache.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	in.Wait()

	if cache.Len() == 0 {
		t.Fatalf("expected data after reconnect")
	}
	if src.calls.Load() < 4 {
		t.Fatalf("expected at least 4 stream attempts, got %d", src.calls.Load())
	}
}

type flakySource struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakySource) SensorID() string { return "GPS" }

func (f *flakySource) Stream(ctx context.Context, out chan<- domain.RawLine) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errors.New("port vanished")
	}
	select {
	case out <- domain.RawLine{SensorID: "GPS", Data: []byte("$GPGGA,1"), ReceivedAt: time.Now()}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

type mockRecords struct {
	mu   sync.Mutex
	recs []*domain.Record
}

func (m *mockRecords) Write(r *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *mockRecords) all() []*domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Record(nil), m.recs...)
}

type mockLive struct {
	sensors atomic.Int32
}

func (m *mockLive) PublishSensor(domain.Datagram)                              { m.sensors.Add(1) }
func (m *mockLive) PublishFrame(string, domain.CaptureSettings, *domain.Frame) {}

type mockObs struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (m *mockObs) LogDebug(string, ...ports.Field)                   {}
func (m *mockObs) LogInfo(string, ...ports.Field)                    {}
func (m *mockObs) LogWarn(string, ...ports.Field)                    {}
func (m *mockObs) LogError(string, error, ...ports.Field)            {}
func (m *mockObs) LogCritical(string, error, ...ports.Field)         {}
func (m *mockObs) ObserveLatency(string, float64)                    {}
func (m *mockObs) SetGauge(string, float64)                          {}
func (m *mockObs) RecordDLQ(ports.WALEntryID, *domain.Record, error) {}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[name] += v
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func TestIngestorCachesUnconfiguredSensor(t *testing.T) {
	c := NewClassifier([]Channel{{Name: "GPS"}}, domain.SensorSynchronous)
	cache := NewCache(time.Minute)
	obs := &mockObs{}
	in := NewIngestor(c, cache, &mockRecords{}, obs)

	in.Handle(domain.RawLine{SensorID: "nav", Data: []byte("$HEHDT,274.1,T"), ReceivedAt: time.Now()})

	if cache.Len() != 1 {
		t.Fatalf("expected the unconfigured sensor to be cached, got %d entries", cache.Len())
	}
	if obs.counter("camflow_sensor_parse_errors_total") != 0 {
		t.Fatalf("unconfigured sensor must not count as a parse error")
	}
}
