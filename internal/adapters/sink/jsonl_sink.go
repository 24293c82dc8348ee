package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// JSONLSink appends one JSON object per record to a metadata file inside
// the deployment folder.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	sync bool
}

// NewJSONLSink opens path for appending. When fsync is set every batch is
// synced before WriteBatch returns.
func NewJSONLSink(path string, fsync bool) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{path: path, file: f, sync: fsync}, nil
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Path() string { return s.path }

func (s *JSONLSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if s.sync {
		return s.file.Sync()
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ ports.Sink = (*JSONLSink)(nil)
