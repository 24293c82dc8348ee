package queue

import (
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// MemQueue is a bounded in-memory FIFO of journaled records.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.QueuedRecord
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]ports.QueuedRecord, 0, capacity),
		cap:  capacity,
	}
}

// Enqueue reports false when the queue is at capacity.
func (q *MemQueue) Enqueue(id ports.WALEntryID, r *domain.Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, ports.QueuedRecord{ID: id, Record: r})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedRecord, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	for i := n; i < len(q.data); i++ {
		q.data[i] = ports.QueuedRecord{}
	}
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.RecordQueue = (*MemQueue)(nil)
