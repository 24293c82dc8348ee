package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

const sourceBuffer = 256

// Ingestor runs one supervised goroutine per line source and routes
// classified datagrams to the cache or the async record path.
type Ingestor struct {
	classifier *Classifier
	cache      *Cache
	throttle   *Throttle
	records    ports.RecordWriter
	live       ports.LivePublisher
	obs        ports.Observability

	minBackoff time.Duration
	maxBackoff time.Duration

	wg sync.WaitGroup
}

type IngestorOption func(*Ingestor)

// WithLive attaches the live read path.
func WithLive(live ports.LivePublisher) IngestorOption {
	return func(in *Ingestor) { in.live = live }
}

// WithBackoff bounds the reconnect delay of failing sources.
func WithBackoff(min, max time.Duration) IngestorOption {
	return func(in *Ingestor) {
		if min > 0 {
			in.minBackoff = min
		}
		if max >= in.minBackoff {
			in.maxBackoff = max
		}
	}
}

func NewIngestor(c *Classifier, cache *Cache, records ports.RecordWriter, obs ports.Observability, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		classifier: c,
		cache:      cache,
		throttle:   NewThrottle(),
		records:    records,
		obs:        obs,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in
}

// Start launches a supervisor per source. Wait blocks until they exit
// after ctx is cancelled.
func (in *Ingestor) Start(ctx context.Context, sources ...ports.LineSource) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		in.wg.Add(1)
		go func(src ports.LineSource) {
			defer in.wg.Done()
			in.runSource(ctx, src)
		}(src)
	}
}

func (in *Ingestor) Wait() { in.wg.Wait() }

func (in *Ingestor) runSource(ctx context.Context, src ports.LineSource) {
	lines := make(chan domain.RawLine, sourceBuffer)
	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for l := range lines {
			in.Handle(l)
		}
	}()
	defer func() {
		close(lines)
		consumer.Wait()
	}()

	backoff := in.minBackoff
	for {
		started := time.Now()
		err := src.Stream(ctx, lines)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("stream ended")
		}
		in.obs.LogError("sensor_source_disconnected", err,
			ports.F("sensor", src.SensorID()),
			ports.F("retry_in", backoff.String()))

		if time.Since(started) > in.maxBackoff {
			backoff = in.minBackoff
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		in.obs.IncCounter("camflow_sensor_reconnects_total", 1)
		backoff *= 2
		if backoff > in.maxBackoff {
			backoff = in.maxBackoff
		}
	}
}

// Handle classifies and routes one line. It never fails; malformed lines
// are counted and logged.
func (in *Ingestor) Handle(line domain.RawLine) {
	in.obs.IncCounter("camflow_sensor_datagrams_total", 1)
	if line.ReceivedAt.IsZero() {
		line.ReceivedAt = time.Now()
	}

	d, err := in.classifier.Classify(line)
	if err != nil {
		in.obs.IncCounter("camflow_sensor_parse_errors_total", 1)
		in.obs.LogWarn("sensor_parse_failed", ports.F("sensor", line.SensorID), ports.F("error", err.Error()))
		return
	}

	reading := domain.SensorReading{
		SensorID:   d.SensorID,
		Header:     d.Header,
		Data:       d.Data,
		ReceivedAt: d.ReceivedAt,
	}

	switch d.Type {
	case domain.SensorIgnored:
		in.obs.IncCounter("camflow_sensor_ignored_total", 1)
		return
	case domain.SensorSynchronous:
		in.cache.Update(reading)
	case domain.SensorAsynchronous:
		if in.throttle.Allow(d.SensorID, in.classifier.LoggingInterval(d.SensorID), d.ReceivedAt) {
			rec := &domain.Record{Kind: domain.RecordAsync, Async: &reading}
			if err := in.records.Write(rec); err != nil {
				in.obs.LogError("async_record_write_failed", err,
					ports.F("sensor", d.SensorID), ports.F("header", d.Header))
			}
		} else {
			in.obs.IncCounter("camflow_async_throttled_total", 1)
		}
	}

	if in.live != nil {
		in.live.PublishSensor(d)
	}
}
