// Package encoder writes captured frames under the deployment folder.
package encoder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

type job struct {
	camera string
	frame  *domain.Frame
}

// FileEncoder stores each frame at <root>/<frame.Name> from a small worker
// pool. SubmitFrame never blocks; a full queue returns ErrEncoderBusy.
type FileEncoder struct {
	root string
	obs  ports.Observability
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewFileEncoder(root string, queueLen, workers int, obs ports.Observability) *FileEncoder {
	if queueLen <= 0 {
		queueLen = 64
	}
	if workers <= 0 {
		workers = 2
	}
	e := &FileEncoder{root: root, obs: obs, jobs: make(chan job, queueLen)}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *FileEncoder) SubmitFrame(cameraID string, frame *domain.Frame) error {
	if frame == nil || frame.Name == "" {
		return fmt.Errorf("frame from %s has no name", cameraID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return os.ErrClosed
	}
	select {
	case e.jobs <- job{camera: cameraID, frame: frame}:
		return nil
	default:
		return domain.ErrEncoderBusy
	}
}

// Close stops accepting frames and waits for queued ones to be written.
func (e *FileEncoder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *FileEncoder) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		if err := e.write(j.frame); err != nil {
			e.obs.IncCounter("camflow_encoder_dropped_total", 1)
			e.obs.LogError("encoder_write_failed", &domain.IoFault{Op: "encode", Err: err},
				ports.F("camera", j.camera),
				ports.F("file", j.frame.Name))
		}
	}
}

func (e *FileEncoder) write(f *domain.Frame) error {
	path := filepath.Join(e.root, f.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, f.Data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ ports.Encoder = (*FileEncoder)(nil)
