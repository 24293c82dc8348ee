package ports

import (
	"context"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// Sink persists batches of records (metadata store, broker, file).
type Sink interface {
	WriteBatch(ctx context.Context, records []*domain.Record) error
	Name() string
	Close() error
}

// RecordWriter accepts single records from the scheduler and sensor paths.
type RecordWriter interface {
	Write(r *domain.Record) error
}

// Encoder accepts frames for image/video encoding.
type Encoder interface {
	SubmitFrame(cameraID string, frame *domain.Frame) error
}
