package camflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("camflow: channel sink closed")

// RecordBatchSink is invoked with ordered batches dequeued from the pipeline.
type RecordBatchSink func([]Record) error

// NewCallbackSink adapts a RecordBatchSink into a full Sink implementation so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Record, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   RecordBatchSink
}

func (s *callbackSink) WriteBatch(_ context.Context, records []*domain.Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(copyBatch(records))
}

func (s *callbackSink) Name() string { return s.name }

func (s *callbackSink) Close() error { return nil }

type channelSink struct {
	name   string
	ch     chan []Record
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(records) == 0 {
		return nil
	}

	batch := copyBatch(records)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) Close() error {
	s.close()
	return nil
}

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

func copyBatch(records []*domain.Record) []Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
