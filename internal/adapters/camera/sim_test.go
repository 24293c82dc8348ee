package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"
)

func TestSimCapturesDecodableJPEG(t *testing.T) {
	cam := NewSim("Cam1", SimConfig{Width: 64, Height: 48})
	if err := cam.Configure(context.Background(), 5000, 2); err != nil {
		t.Fatalf("configure: %v", err)
	}
	frame, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("unexpected bounds %v", b)
	}
	if frame.Format != "jpeg" || cam.Frames() != 1 {
		t.Fatalf("unexpected frame %+v frames=%d", frame, cam.Frames())
	}
}

func TestSimCaptureHonorsContext(t *testing.T) {
	cam := NewSim("Cam1", SimConfig{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cam.Capture(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSimClosed(t *testing.T) {
	cam := NewSim("Cam1", SimConfig{})
	cam.Close()
	if _, err := cam.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := cam.Configure(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
