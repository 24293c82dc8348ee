package camflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// ErrQueueFull indicates a feed or queue rejected input according to policy.
var ErrQueueFull = domain.ErrQueueFull

// ErrWALFull indicates the WAL is at capacity and OnWALFull != "block".
var ErrWALFull = domain.ErrWALFull

// ErrFeedClosed is returned by Publish after the feed was closed.
var ErrFeedClosed = domain.ErrFeedClosed

// ExternalFeed is a LineSource fed by the embedding program. Sensors whose
// transport is "external" get one automatically; see EdgeRuntime.Feed.
type ExternalFeed struct {
	sensorID string
	lines    chan domain.RawLine
	now      func() time.Time

	mu       sync.RWMutex
	closed   bool
	closedCh chan struct{}
}

// NewExternalFeed buffers up to buffer lines between Publish and the ingestor.
func NewExternalFeed(sensorID string, buffer int) *ExternalFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &ExternalFeed{
		sensorID: sensorID,
		lines:    make(chan domain.RawLine, buffer),
		now:      time.Now,
		closedCh: make(chan struct{}),
	}
}

func (f *ExternalFeed) SensorID() string { return f.sensorID }

// Publish hands one raw line to the ingestor without blocking.
func (f *ExternalFeed) Publish(line string) error {
	return f.PublishAt(line, f.now())
}

// PublishAt is Publish with an explicit receive time.
func (f *ExternalFeed) PublishAt(line string, at time.Time) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	select {
	case f.lines <- domain.RawLine{SensorID: f.sensorID, Data: []byte(line), ReceivedAt: at}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stream forwards published lines until ctx is cancelled or the feed closes.
func (f *ExternalFeed) Stream(ctx context.Context, out chan<- domain.RawLine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.closedCh:
			return f.flush(ctx, out)
		case l := <-f.lines:
			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *ExternalFeed) flush(ctx context.Context, out chan<- domain.RawLine) error {
	for {
		select {
		case l := <-f.lines:
			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			<-ctx.Done()
			return errors.Join(ErrFeedClosed, ctx.Err())
		}
	}
}

// Close stops accepting lines. Lines already published are still delivered.
func (f *ExternalFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.closedCh)
}
