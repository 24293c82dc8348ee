package ports

import (
	"context"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// Camera is the capability consumed from a camera driver.
type Camera interface {
	Configure(ctx context.Context, exposure, gain float64) error
	Capture(ctx context.Context) (*domain.Frame, error)
	Close() error
}

// LivePublisher receives the live read path: sensor datagrams and
// frames flagged with emit_signal.
type LivePublisher interface {
	PublishSensor(d domain.Datagram)
	PublishFrame(cameraID string, settings domain.CaptureSettings, frame *domain.Frame)
}
