package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// levelCritical sits above slog.LevelError.
const levelCritical = slog.Level(12)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

type Option func(*promConfig)

type promConfig struct {
	logger *slog.Logger
	reg    prometheus.Registerer
}

// WithLogger replaces the default stdout text logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *promConfig) { c.logger = l }
}

// WithRegisterer registers the collectors somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *promConfig) { c.reg = reg }
}

// NewLogger builds a text logger at the named level ("debug", "info",
// "warn", "error") writing to w.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return levelCritical
	default:
		return slog.LevelInfo
	}
}

func NewPromObs(opts ...Option) *PromObs {
	cfg := promConfig{reg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = NewLogger(os.Stdout, "info")
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	p := &PromObs{
		logger: cfg.logger,
		counters: map[string]prometheus.Counter{
			"camflow_triggers_total":              counter("camflow_triggers_total", "Trigger ticks fired by the scheduler."),
			"camflow_images_saved_total":          counter("camflow_images_saved_total", "Images and video frames handed to the encoder and recorded."),
			"camflow_camera_faults_total":         counter("camflow_camera_faults_total", "Per-tick camera faults (timeouts, capture or configure failures, busy)."),
			"camflow_sensor_datagrams_total":      counter("camflow_sensor_datagrams_total", "Raw sensor lines received."),
			"camflow_sensor_ignored_total":        counter("camflow_sensor_ignored_total", "Sensor lines dropped by ignore_headers."),
			"camflow_sensor_parse_errors_total":   counter("camflow_sensor_parse_errors_total", "Sensor lines that could not be classified."),
			"camflow_async_throttled_total":       counter("camflow_async_throttled_total", "Async datagrams not persisted because of logging_interval_ms."),
			"camflow_records_persisted_total":     counter("camflow_records_persisted_total", "Records committed to the metadata sink."),
			"camflow_record_write_failures_total": counter("camflow_record_write_failures_total", "Records that could not be journaled or encoded."),
			"camflow_dlq_total":                   counter("camflow_dlq_total", "Records rejected by the sink and dead-lettered."),
			"camflow_queue_dropped_total":         counter("camflow_queue_dropped_total", "Records lost due to queue backpressure policies."),
			"camflow_encoder_dropped_total":       counter("camflow_encoder_dropped_total", "Frames the encoder could not write."),
			"camflow_live_published_total":        counter("camflow_live_published_total", "Messages handed to the live read path."),
			"camflow_live_dropped_total":          counter("camflow_live_dropped_total", "Live messages dropped while the broker was unreachable."),
			"camflow_mqtt_disconnects_total":      counter("camflow_mqtt_disconnects_total", "MQTT connection losses."),
			"camflow_sensor_reconnects_total":     counter("camflow_sensor_reconnects_total", "Sensor transport restarts."),
		},
		gauges: map[string]prometheus.Gauge{
			"camflow_queue_length":   gauge("camflow_queue_length", "Records buffered in the in-memory queue."),
			"camflow_wal_size_bytes": gauge("camflow_wal_size_bytes", "Size of the record journal on disk."),
			"camflow_image_number":   gauge("camflow_image_number", "Last image number issued in this deployment."),
		},
	}

	tick := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camflow_tick_duration_seconds",
		Help:    "Time spent dispatching and recording one trigger tick.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camflow_sink_latency_seconds",
		Help:    "Latency of one batch write to the metadata sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	p.histos = map[string]prometheus.Observer{
		"camflow_tick_duration_seconds": tick,
		"camflow_sink_latency_seconds":  sinkLatency,
	}

	if cfg.reg != nil {
		for _, c := range p.counters {
			cfg.reg.MustRegister(c)
		}
		for _, g := range p.gauges {
			cfg.reg.MustRegister(g)
		}
		cfg.reg.MustRegister(tick, sinkLatency)
	}
	return p
}

func (p *PromObs) Logger() *slog.Logger { return p.logger }

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log(slog.LevelDebug, msg, nil, fields)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log(slog.LevelInfo, msg, nil, fields)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log(slog.LevelWarn, msg, nil, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, fields)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log(levelCritical, msg, err, fields)
}

func (p *PromObs) log(level slog.Level, msg string, err error, fields []ports.Field) {
	ctx := context.Background()
	if !p.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+1)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	p.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, r *domain.Record, err error) {
	p.IncCounter("camflow_dlq_total", 1)
	if err == nil {
		return
	}
	fields := []ports.Field{ports.F("wal_id", uint64(id))}
	if r != nil {
		fields = append(fields, ports.F("record", r.ID), ports.F("kind", string(r.Kind)))
	}
	p.LogError("record_dead_lettered", err, fields...)
}

var _ ports.Observability = (*PromObs)(nil)
