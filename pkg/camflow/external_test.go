package camflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExternalFeedForwardsLines(t *testing.T) {
	feed := NewExternalFeed("gps", 2)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := feed.PublishAt("$GPGGA,1", at); err != nil {
		t.Fatalf("PublishAt returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan RawLine, 1)
	done := make(chan error, 1)
	go func() { done <- feed.Stream(ctx, out) }()

	select {
	case l := <-out:
		if l.SensorID != "gps" || string(l.Data) != "$GPGGA,1" || !l.ReceivedAt.Equal(at) {
			t.Fatalf("unexpected line %+v", l)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExternalFeedFullAndClosed(t *testing.T) {
	feed := NewExternalFeed("gps", 1)
	if err := feed.Publish("a"); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := feed.Publish("b"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	feed.Close()
	feed.Close()
	if err := feed.Publish("c"); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan RawLine, 1)
	done := make(chan error, 1)
	go func() { done <- feed.Stream(ctx, out) }()

	select {
	case l := <-out:
		if string(l.Data) != "a" {
			t.Fatalf("expected buffered line to be flushed, got %q", l.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flushed line")
	}
	cancel()
	if err := <-done; !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed after close, got %v", err)
	}
}
