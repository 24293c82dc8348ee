package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

const (
	sinkAttempts     = 3
	drainWriteBudget = 10 * time.Second
)

var errMissingPayload = errors.New("record payload does not match its kind")

// RunIngestPipeline moves queued records into the sink and commits them in
// the WAL. A batch the sink keeps rejecting is dead-lettered so the queue
// keeps moving. When ctx is cancelled the queue is drained before return;
// records the sink refuses during the drain stay in the WAL for replay.
func RunIngestPipeline(ctx context.Context, wal ports.WAL, q ports.RecordQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) error {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}

	held := false
	for {
		select {
		case <-ctx.Done():
			return drain(ctx, wal, q, sink, pol, obs, held)
		default:
		}

		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			t := time.NewTimer(idle)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
			continue
		}
		held = !ingestBatch(ctx, wal, sink, batch, pol, obs)
	}
}

// ingestBatch reports false when the batch was left uncommitted because
// ctx ended between sink retries.
func ingestBatch(ctx context.Context, wal ports.WAL, sink ports.Sink, batch []ports.QueuedRecord, pol ports.Policy, obs ports.Observability) bool {
	valid, records, maxID := validBatch(batch, obs)
	if len(records) == 0 {
		commit(wal, maxID, pol, obs)
		return true
	}

	var err error
	for attempt := 1; attempt <= sinkAttempts; attempt++ {
		if err = writeBatch(ctx, sink, records, obs); err == nil {
			commit(wal, maxID, pol, obs)
			return true
		}
		obs.LogError("sink_write_failed", err,
			ports.F("sink", sink.Name()),
			ports.F("records", len(records)),
			ports.F("attempt", attempt))
		if attempt < sinkAttempts && !sleepCtx(ctx, pol.RetryBackoff) {
			// Shutting down: leave the batch in the WAL for replay.
			return false
		}
	}

	for _, item := range valid {
		obs.RecordDLQ(item.ID, item.Record, err)
	}
	commit(wal, maxID, pol, obs)
	return true
}

// drain writes what is left in the queue once. Commits are by highest id, so
// after the first batch that stays in the WAL nothing more is committed and
// the remainder is replayed, possibly twice, on the next start.
func drain(ctx context.Context, wal ports.WAL, q ports.RecordQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability, held bool) error {
	base := context.WithoutCancel(ctx)
	var errs []error
	for {
		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			break
		}
		_, records, maxID := validBatch(batch, obs)
		if len(records) > 0 {
			wctx, cancel := context.WithTimeout(base, drainWriteBudget)
			err := writeBatch(wctx, sink, records, obs)
			cancel()
			if err != nil {
				obs.LogError("sink_drain_failed", err, ports.F("sink", sink.Name()), ports.F("records", len(records)))
				errs = append(errs, err)
				held = true
				continue
			}
		}
		if !held {
			commit(wal, maxID, pol, obs)
		}
	}
	if err := wal.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("wal flush: %w", err))
	}
	return errors.Join(errs...)
}

func writeBatch(ctx context.Context, sink ports.Sink, records []*domain.Record, obs ports.Observability) error {
	start := time.Now()
	if err := sink.WriteBatch(ctx, records); err != nil {
		return err
	}
	obs.ObserveLatency("camflow_sink_latency_seconds", time.Since(start).Seconds())
	obs.IncCounter("camflow_records_persisted_total", float64(len(records)))
	return nil
}

// validBatch drops records whose payload does not match their kind.
func validBatch(batch []ports.QueuedRecord, obs ports.Observability) ([]ports.QueuedRecord, []*domain.Record, ports.WALEntryID) {
	var (
		valid = make([]ports.QueuedRecord, 0, len(batch))
		out   = make([]*domain.Record, 0, len(batch))
		maxID ports.WALEntryID
	)
	for _, item := range batch {
		if item.ID > maxID {
			maxID = item.ID
		}
		if !wellFormed(item.Record) {
			obs.RecordDLQ(item.ID, item.Record, errMissingPayload)
			continue
		}
		valid = append(valid, item)
		out = append(out, item.Record)
	}
	return valid, out, maxID
}

func wellFormed(r *domain.Record) bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case domain.RecordImage:
		return r.Image != nil
	case domain.RecordDropped:
		return r.Dropped != nil
	case domain.RecordAsync:
		return r.Async != nil
	case domain.RecordDeployment:
		return r.Deployment != nil
	}
	return false
}

func commit(wal ports.WAL, upto ports.WALEntryID, pol ports.Policy, obs ports.Observability) {
	if upto == 0 {
		return
	}
	if err := wal.Commit(upto); err != nil {
		obs.LogError("wal_commit_failed", err, ports.F("upto", uint64(upto)))
		return
	}
	stats := wal.Stats()
	if pol.MaxWALSizeBytes > 0 && stats.SizeBytes >= pol.MaxWALSizeBytes/2 {
		if err := wal.TruncateCommitted(); err != nil {
			obs.LogError("wal_truncate_failed", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
