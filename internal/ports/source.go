package ports

import (
	"context"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// LineSource streams raw lines from one sensor transport. Stream blocks
// until ctx is cancelled or the transport fails; it may be called again
// to reconnect.
type LineSource interface {
	SensorID() string
	Stream(ctx context.Context, out chan<- domain.RawLine) error
}
