// Package transport provides the serial and UDP sensor line sources.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// MaxLineLength bounds a single sensor line; longer lines fail the stream.
const MaxLineLength = 16384

// scanLines reads delimited lines from r until it fails or ctx ends.
func scanLines(ctx context.Context, sensorID string, r io.Reader, delim byte, out chan<- domain.RawLine) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineLength)
	sc.Split(splitOn(delim))
	for sc.Scan() {
		if err := emit(ctx, sensorID, sc.Bytes(), out); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// emit copies b since scanners and packet buffers are reused.
func emit(ctx context.Context, sensorID string, b []byte, out chan<- domain.RawLine) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	line := domain.RawLine{
		SensorID:   sensorID,
		Data:       append([]byte(nil), b...),
		ReceivedAt: time.Now(),
	}
	select {
	case out <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func splitOn(delim byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexByte(data, delim); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
