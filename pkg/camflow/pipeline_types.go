package camflow

import (
	"github.com/ghalamif/CamFlow/internal/control"
	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// Record is the unit that flows through the WAL→queue→sink pipeline.
type Record = domain.Record

type (
	RecordKind       = domain.RecordKind
	ImageRecord      = domain.ImageRecord
	DroppedRecord    = domain.DroppedRecord
	DeploymentRecord = domain.DeploymentRecord
	SensorReading    = domain.SensorReading
)

const (
	RecordImage      = domain.RecordImage
	RecordDropped    = domain.RecordDropped
	RecordAsync      = domain.RecordAsync
	RecordDeployment = domain.RecordDeployment
)

// QueuedRecord represents an item buffered inside the bounded queue.
type QueuedRecord = ports.QueuedRecord

// RecordQueue is the bounded, in-memory queue that decouples producers and the sink.
type RecordQueue = ports.RecordQueue

// Sink consumes batches of records and persists them to any downstream system.
type Sink = ports.Sink

// Camera is the driver capability the scheduler triggers.
type Camera = ports.Camera

// Frame is an image returned by a Camera.
type Frame = domain.Frame

// CaptureSettings are the exposure settings of one capture.
type CaptureSettings = domain.CaptureSettings

// CameraProfile is a resolved, read-only camera configuration.
type CameraProfile = domain.CameraProfile

// Encoder receives frames chosen for saving.
type Encoder = ports.Encoder

// LineSource streams raw sensor lines from any transport.
type LineSource = ports.LineSource

// LivePublisher receives sensor datagrams and emit_signal frames as they happen.
type LivePublisher = ports.LivePublisher

// RawLine is one unparsed line read from a sensor transport.
type RawLine = domain.RawLine

// Datagram is a classified sensor line.
type Datagram = domain.Datagram

// Observability emits metrics/logs about triggers, sensors and persistence.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// Clock drives the trigger schedule.
type Clock = ports.Clock

// Timer is a single-shot timer created by a Clock.
type Timer = ports.Timer

// Status is a point-in-time view of the trigger scheduler.
type Status = domain.Status

// Command and Response are the control-plane messages.
type (
	Command  = control.Command
	Response = control.Response
)
