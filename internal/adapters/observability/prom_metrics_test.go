package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	obs := NewPromObs(WithRegisterer(reg), WithLogger(NewLogger(&buf, "info")))

	obs.IncCounter("camflow_records_persisted_total", 5)
	if got := testutil.ToFloat64(obs.counters["camflow_records_persisted_total"]); got != 5 {
		t.Fatalf("expected persisted counter 5, got %f", got)
	}

	obs.IncCounter("camflow_queue_dropped_total", 2)
	if got := testutil.ToFloat64(obs.counters["camflow_queue_dropped_total"]); got != 2 {
		t.Fatalf("expected queue drop counter 2, got %f", got)
	}

	obs.SetGauge("camflow_wal_size_bytes", 42)
	if got := testutil.ToFloat64(obs.gauges["camflow_wal_size_bytes"]); got != 42 {
		t.Fatalf("expected wal gauge 42, got %f", got)
	}

	obs.ObserveLatency("camflow_sink_latency_seconds", 0.5)
	hCollector := obs.histos["camflow_sink_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDLQ(1, &domain.Record{ID: "r1", Kind: domain.RecordImage}, errors.New("constraint violation"))
	if got := testutil.ToFloat64(obs.counters["camflow_dlq_total"]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}
	if !strings.Contains(buf.String(), "record_dead_lettered") || !strings.Contains(buf.String(), "kind=image") {
		t.Fatalf("expected dlq log line, got %q", buf.String())
	}

	mfs, err := reg.Gather()
	if err != nil || len(mfs) == 0 {
		t.Fatalf("expected collectors on the supplied registry: %v", err)
	}

	// unknown names are ignored
	obs.IncCounter("nope_total", 1)
}

func TestPromObsLogLevels(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(WithRegisterer(prometheus.NewRegistry()), WithLogger(NewLogger(&buf, "warn")))

	obs.LogInfo("hidden_event", ports.F("seq", 1))
	obs.LogWarn("sensor_parse_failed", ports.F("sensor", "GPS"))
	obs.LogCritical("scheduler_clock_fault", errors.New("timer closed"), ports.F("seq", 9))

	out := buf.String()
	if strings.Contains(out, "hidden_event") {
		t.Fatalf("info must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "sensor=GPS") {
		t.Fatalf("expected structured field in %q", out)
	}
	if !strings.Contains(out, "level=CRITICAL") || !strings.Contains(out, `error="timer closed"`) {
		t.Fatalf("expected critical line with error in %q", out)
	}
}
