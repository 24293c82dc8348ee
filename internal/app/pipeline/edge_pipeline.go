package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// Recorder journals records to the WAL and hands them to the ingest queue.
// Writes are serialized so queue order matches WAL order; the ingest side
// commits by highest id and relies on it.
type Recorder struct {
	wal          ports.WAL
	queue        ports.RecordQueue
	pol          ports.Policy
	obs          ports.Observability
	deploymentID string

	mu sync.Mutex
}

func NewRecorder(wal ports.WAL, q ports.RecordQueue, pol ports.Policy, obs ports.Observability, deploymentID string) *Recorder {
	return &Recorder{wal: wal, queue: q, pol: pol, obs: obs, deploymentID: deploymentID}
}

// Write stamps missing ids, appends the record to the WAL with one retry and
// enqueues it under the queue policy.
func (r *Recorder) Write(rec *domain.Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DeploymentID == "" {
		rec.DeploymentID = r.deploymentID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !waitForWALCapacity(r.wal, r.pol, r.obs) {
		r.obs.IncCounter("camflow_record_write_failures_total", 1)
		return domain.ErrWALFull
	}

	id, err := r.wal.Append(rec)
	if err != nil {
		id, err = r.wal.Append(rec)
	}
	if err != nil {
		r.obs.IncCounter("camflow_record_write_failures_total", 1)
		fault := &domain.IoFault{Op: "wal_append", Err: err}
		r.obs.LogCritical("wal_append_failed", fault, ports.F("kind", string(rec.Kind)), ports.F("record", rec.ID))
		return fault
	}

	if !enqueueWithPolicy(r.queue, id, rec, r.pol, r.obs) {
		r.obs.IncCounter("camflow_queue_dropped_total", 1)
		return domain.ErrQueueFull
	}
	return nil
}

var _ ports.RecordWriter = (*Recorder)(nil)

func waitForWALCapacity(wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			time.Sleep(sleep)
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(q ports.RecordQueue, id ports.WALEntryID, rec *domain.Record, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(id, rec); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			time.Sleep(sleep)
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen),
				ports.F("record", rec.ID))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

// ReplayWAL queues every journaled record the sink has not committed yet.
func ReplayWAL(wal ports.WAL, q ports.RecordQueue, pol ports.Policy, obs ports.Observability) (int, error) {
	stats := wal.Stats()
	if stats.LatestAppended == 0 {
		return 0, nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return 0, nil
	}

	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	var replayed int
	err := wal.Iterate(start, func(id ports.WALEntryID, rec *domain.Record) error {
		for {
			if q.Enqueue(id, rec) {
				replayed++
				return nil
			}
			switch pol.OnQueueFull {
			case "drop", "reject":
				return fmt.Errorf("queue full during WAL replay at entry %d", id)
			default:
				time.Sleep(sleep)
			}
		}
	})
	if err != nil {
		return replayed, err
	}
	if replayed > 0 {
		obs.LogInfo("wal_replay_complete",
			ports.F("records", replayed),
			ports.F("from_id", uint64(start)))
	}
	return replayed, nil
}
