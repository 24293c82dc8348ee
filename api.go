package camflow

import (
	base "github.com/ghalamif/CamFlow/pkg/camflow"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = base.ErrQueueFull
	ErrWALFull           = base.ErrWALFull
	ErrFeedClosed        = base.ErrFeedClosed
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrAlreadyStarted    = base.ErrAlreadyStarted
)

// Type aliases so consumers can import github.com/ghalamif/CamFlow directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	CameraConfig      = base.CameraConfig
	SimConfig         = base.SimConfig
	SensorConfig      = base.SensorConfig
	SerialConfig      = base.SerialConfig
	UDPConfig         = base.UDPConfig
	OPCUAConfig       = base.OPCUAConfig
	OPCUANodeConfig   = base.OPCUANodeConfig
	MQTTConfig        = base.MQTTConfig
	AMQPConfig        = base.AMQPConfig
	MetricsConfig     = base.MetricsConfig
	WALConfig         = base.WALConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	EdgeRuntime       = base.EdgeRuntime
	EdgeRuntimeOption = base.EdgeRuntimeOption
	CameraFactory     = base.CameraFactory
	Record            = base.Record
	RecordKind        = base.RecordKind
	RecordBatchSink   = base.RecordBatchSink
	Camera            = base.Camera
	Frame             = base.Frame
	Encoder           = base.Encoder
	LineSource        = base.LineSource
	LivePublisher     = base.LivePublisher
	Clock             = base.Clock
	Sink              = base.Sink
	RecordQueue       = base.RecordQueue
	WAL               = base.WAL
	Observability     = base.Observability
	QueuedRecord      = base.QueuedRecord
	WALEntryID        = base.WALEntryID
	WALStats          = base.WALStats
	Status            = base.Status
	Command           = base.Command
	Response          = base.Response
	ExternalFeed      = base.ExternalFeed
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSources(src ...LineSource) StreamInOption {
	return base.StreamInSources(src...)
}

func StreamInCameras(factory CameraFactory) StreamInOption {
	return base.StreamInCameras(factory)
}

func StreamInClock(c Clock) StreamInOption {
	return base.StreamInClock(c)
}

func StreamInQueue(q RecordQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutEncoder(e Encoder) StreamOutOption {
	return base.StreamOutEncoder(e)
}

func StreamOutLive(l LivePublisher) StreamOutOption {
	return base.StreamOutLive(l)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithSink(s Sink) EdgeRuntimeOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) EdgeRuntimeOption {
	return base.WithWAL(w)
}

func WithRecordQueue(q RecordQueue) EdgeRuntimeOption {
	return base.WithRecordQueue(q)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

func WithCameraFactory(f CameraFactory) EdgeRuntimeOption {
	return base.WithCameraFactory(f)
}

func WithEncoder(e Encoder) EdgeRuntimeOption {
	return base.WithEncoder(e)
}

func WithLivePublisher(l LivePublisher) EdgeRuntimeOption {
	return base.WithLivePublisher(l)
}

func WithClock(c Clock) EdgeRuntimeOption {
	return base.WithClock(c)
}

func WithLineSources(src ...LineSource) EdgeRuntimeOption {
	return base.WithLineSources(src...)
}

// Sink adapters.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	return base.NewChannelSink(name, buffer)
}

// External sensor feeds.
func NewExternalFeed(sensorID string, buffer int) *ExternalFeed {
	return base.NewExternalFeed(sensorID, buffer)
}
