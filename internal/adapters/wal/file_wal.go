package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

const (
	recordHeaderLen = 12
	logName         = "records.wal"
	metaName        = "records.meta"
)

// FileWAL journals records before they are queued for the sink.
// Entry format: [8 bytes id][4 bytes len][len bytes json].
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
	closed    bool
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &FileWAL{
		path:     filepath.Join(dir, logName),
		metaPath: filepath.Join(dir, metaName),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	if err := w.bootstrap(); err != nil {
		w.file.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWAL) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 256<<10)
	return nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and cuts off a torn tail.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer rf.Close()

	var (
		offset int64
		lastID ports.WALEntryID
	)
	err = readEntries(bufio.NewReader(rf), func(id ports.WALEntryID, body []byte) error {
		offset += recordHeaderLen + int64(len(body))
		lastID = id
		return nil
	})
	if err != nil && !errors.Is(err, errTornEntry) {
		return fmt.Errorf("wal scan: %w", err)
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(r *domain.Record) (ports.WALEntryID, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}

	id := w.nextID + 1
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, r *domain.Record) error) error {
	w.mu.Lock()
	if err := w.writer.Flush(); err != nil {
		w.mu.Unlock()
		return err
	}
	f, err := os.Open(w.path)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	defer f.Close()

	err = readEntries(bufio.NewReader(f), func(id ports.WALEntryID, body []byte) error {
		if id < from {
			return nil
		}
		var r domain.Record
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("corrupt wal entry %d: %w", id, err)
		}
		return fn(id, &r)
	})
	if errors.Is(err, errTornEntry) {
		return fmt.Errorf("corrupt wal: %w", err)
	}
	return err
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log keeping only uncommitted entries.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	src, err := os.Open(w.path)
	if err != nil {
		return err
	}
	tmpPath := w.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		src.Close()
		return err
	}

	var kept int64
	bw := bufio.NewWriter(tmp)
	err = readEntries(bufio.NewReader(src), func(id ports.WALEntryID, body []byte) error {
		if id <= w.committed {
			return nil
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := bw.Write(body); err != nil {
			return err
		}
		kept += recordHeaderLen + int64(len(body))
		return nil
	})
	src.Close()
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wal truncate: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

// Flush pushes buffered entries to the OS and fsyncs the log.
func (w *FileWAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.writer.Flush()
	if serr := w.file.Sync(); err == nil {
		err = serr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}

var errTornEntry = errors.New("torn entry")

func readEntries(r io.Reader, fn func(id ports.WALEntryID, body []byte) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornEntry
			}
			return err
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornEntry
			}
			return err
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
}

var _ ports.WAL = (*FileWAL)(nil)
