package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// PostgresSink writes records into the image/sensor tables of a
// PostgreSQL or TimescaleDB database. Inserts are keyed by record ID so WAL
// replays are idempotent.
type PostgresSink struct {
	db *sql.DB
	q  queries
}

type queries struct {
	schema     []string
	image      string
	sensor     string
	async      string
	dropped    string
	deployment string
}

func NewPostgresSink(db *sql.DB, prefix string) *PostgresSink {
	return &PostgresSink{db: db, q: buildQueries(prefix)}
}

func buildQueries(p string) queries {
	return queries{
		schema: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sdeployments (
	record_id TEXT PRIMARY KEY,
	deployment_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	output_dir TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	stop_reason TEXT,
	vessel TEXT,
	survey TEXT,
	camera_name TEXT,
	description TEXT,
	first_number BIGINT NOT NULL
)`, p),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %simages (
	record_id TEXT PRIMARY KEY,
	deployment_id TEXT NOT NULL,
	number BIGINT NOT NULL,
	camera TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	filename TEXT NOT NULL,
	exposure DOUBLE PRECISION,
	gain DOUBLE PRECISION,
	hdr_index INTEGER,
	hdr_label TEXT,
	still BOOLEAN,
	video_frame BOOLEAN
)`, p),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %ssensor_data (
	image_record_id TEXT NOT NULL,
	deployment_id TEXT NOT NULL,
	number BIGINT NOT NULL,
	sensor_id TEXT NOT NULL,
	header TEXT NOT NULL,
	data TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (image_record_id, sensor_id, header)
)`, p),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sasync_data (
	record_id TEXT PRIMARY KEY,
	deployment_id TEXT NOT NULL,
	sensor_id TEXT NOT NULL,
	header TEXT NOT NULL,
	data TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
)`, p),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sdropped (
	record_id TEXT PRIMARY KEY,
	deployment_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	camera TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	reason TEXT
)`, p),
		},
		image: fmt.Sprintf("INSERT INTO %simages (record_id, deployment_id, number, camera, sequence, ts, filename, exposure, gain, hdr_index, hdr_label, still, video_frame) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) ON CONFLICT (record_id) DO NOTHING", p),
		sensor: fmt.Sprintf("INSERT INTO %ssensor_data (image_record_id, deployment_id, number, sensor_id, header, data, received_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (image_record_id, sensor_id, header) DO NOTHING", p),
		async: fmt.Sprintf("INSERT INTO %sasync_data (record_id, deployment_id, sensor_id, header, data, received_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (record_id) DO NOTHING", p),
		dropped: fmt.Sprintf("INSERT INTO %sdropped (record_id, deployment_id, sequence, camera, ts, reason) "+
			"VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (record_id) DO NOTHING", p),
		deployment: fmt.Sprintf("INSERT INTO %sdeployments (record_id, deployment_id, mode, output_dir, started_at, ended_at, stop_reason, vessel, survey, camera_name, description, first_number) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) ON CONFLICT (record_id) DO NOTHING", p),
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the metadata tables when they do not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.q.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WriteBatch inserts all records in one transaction.
func (s *PostgresSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := s.insert(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s record %s: %w", r.Kind, r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresSink) insert(ctx context.Context, tx *sql.Tx, r *domain.Record) error {
	switch r.Kind {
	case domain.RecordImage:
		img := r.Image
		if img == nil {
			return errMissingPayload
		}
		if _, err := tx.ExecContext(ctx, s.q.image,
			r.ID, r.DeploymentID, int64(img.Number), img.Camera, int64(img.Sequence), img.Time,
			img.Filename, img.Settings.Exposure, img.Settings.Gain, img.Settings.HDRIndex,
			img.Settings.HDRLabel, img.Still, img.VideoFrame,
		); err != nil {
			return err
		}
		for _, sr := range img.Sensors {
			if _, err := tx.ExecContext(ctx, s.q.sensor,
				r.ID, r.DeploymentID, int64(img.Number), sr.SensorID, sr.Header, sr.Data, sr.ReceivedAt,
			); err != nil {
				return err
			}
		}
		return nil

	case domain.RecordAsync:
		a := r.Async
		if a == nil {
			return errMissingPayload
		}
		_, err := tx.ExecContext(ctx, s.q.async, r.ID, r.DeploymentID, a.SensorID, a.Header, a.Data, a.ReceivedAt)
		return err

	case domain.RecordDropped:
		d := r.Dropped
		if d == nil {
			return errMissingPayload
		}
		_, err := tx.ExecContext(ctx, s.q.dropped, r.ID, r.DeploymentID, int64(d.Sequence), d.Camera, d.Time, d.Reason)
		return err

	case domain.RecordDeployment:
		d := r.Deployment
		if d == nil {
			return errMissingPayload
		}
		var ended sql.NullTime
		if !d.EndedAt.IsZero() {
			ended = sql.NullTime{Time: d.EndedAt, Valid: true}
		}
		_, err := tx.ExecContext(ctx, s.q.deployment,
			r.ID, r.DeploymentID, d.Mode, d.OutputDir, d.StartedAt, ended, d.StopReason,
			d.Vessel, d.Survey, d.CameraName, d.Description, int64(d.FirstNumber),
		)
		return err
	}
	return fmt.Errorf("unknown record kind %q", r.Kind)
}

func (s *PostgresSink) Close() error { return s.db.Close() }

var _ ports.Sink = (*PostgresSink)(nil)
