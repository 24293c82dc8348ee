// Package camera provides a simulated camera handle that renders
// synthetic JPEG frames. It stands in for vendor drivers on bench rigs.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

var ErrClosed = errors.New("camera closed")

type SimConfig struct {
	Width   int           `yaml:"width"`
	Height  int           `yaml:"height"`
	Latency time.Duration `yaml:"latency"`
	Quality int           `yaml:"quality"`
}

func (c *SimConfig) ApplyDefaults() {
	if c.Width <= 0 {
		c.Width = 320
	}
	if c.Height <= 0 {
		c.Height = 240
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 80
	}
}

// Sim renders a gradient whose brightness follows exposure * gain, so
// HDR steps produce visibly different frames.
type Sim struct {
	id  string
	cfg SimConfig
	now func() time.Time

	mu       sync.Mutex
	exposure float64
	gain     float64
	frames   uint64
	closed   bool
}

func NewSim(id string, cfg SimConfig) *Sim {
	cfg.ApplyDefaults()
	return &Sim{id: id, cfg: cfg, now: time.Now, exposure: 1, gain: 1}
}

func (s *Sim) Configure(ctx context.Context, exposure, gain float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exposure < 0 || gain < 0 {
		return fmt.Errorf("invalid settings exposure=%v gain=%v", exposure, gain)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.exposure, s.gain = exposure, gain
	return nil
}

func (s *Sim) Capture(ctx context.Context) (*domain.Frame, error) {
	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.frames++
	n, level := s.frames, brightness(s.exposure, s.gain)
	s.mu.Unlock()

	img := image.NewGray(image.Rect(0, 0, s.cfg.Width, s.cfg.Height))
	for y := 0; y < s.cfg.Height; y++ {
		for x := 0; x < s.cfg.Width; x++ {
			v := level * float64(x+int(n)%s.cfg.Width) / float64(2*s.cfg.Width)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Min(255, v))})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return &domain.Frame{
		Data:       buf.Bytes(),
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		Format:     "jpeg",
		CapturedAt: s.now(),
	}, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Frames reports how many frames were captured.
func (s *Sim) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func brightness(exposure, gain float64) float64 {
	if gain <= 0 {
		gain = 1
	}
	return 255 * math.Min(1, math.Log1p(exposure*gain)/math.Log1p(10000))
}

var _ ports.Camera = (*Sim)(nil)
