package camflow

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying wiring.
type Flow struct {
	cfg  *Config
	opts []EdgeRuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the acquisition side: sensor sources, cameras,
// clock, WAL and queue.
type StreamInOption func(*Flow)

// StreamOutOption configures the output side: sink, encoder and live publisher.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw EdgeRuntimeOption values to the builder for advanced scenarios.
func (f *Flow) Options(opts ...EdgeRuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records acquisition-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records output-side overrides and builds an EdgeRuntime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*EdgeRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewEdgeRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends EdgeRuntimeOption values during Conf.
func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInSources adds sensor line sources (serial ports, sockets, simulators).
func StreamInSources(src ...LineSource) StreamInOption {
	return func(f *Flow) {
		if f != nil && len(src) > 0 {
			f.appendOptions(WithLineSources(src...))
		}
	}
}

// StreamInCameras opens camera handles through a caller-provided factory.
func StreamInCameras(factory CameraFactory) StreamInOption {
	return func(f *Flow) {
		if f != nil && factory != nil {
			f.appendOptions(WithCameraFactory(factory))
		}
	}
}

// StreamInClock drives triggering from a custom clock.
func StreamInClock(c Clock) StreamInOption {
	return func(f *Flow) {
		if f != nil && c != nil {
			f.appendOptions(WithClock(c))
		}
	}
}

// StreamInQueue swaps the in-memory queue for a caller-provided implementation.
func StreamInQueue(q RecordQueue) StreamInOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithRecordQueue(q))
		}
	}
}

// StreamInWAL lets callers bring their own WAL implementation.
func StreamInWAL(w WAL) StreamInOption {
	return func(f *Flow) {
		if f != nil && w != nil {
			f.appendOptions(WithWAL(w))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutSink injects a custom ports.Sink implementation.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// StreamOutEncoder replaces the file encoder that writes images to disk.
func StreamOutEncoder(e Encoder) StreamOutOption {
	return func(f *Flow) {
		if f != nil && e != nil {
			f.appendOptions(WithEncoder(e))
		}
	}
}

// StreamOutLive receives sensor datagrams and flagged frames as they happen.
func StreamOutLive(l LivePublisher) StreamOutOption {
	return func(f *Flow) {
		if f != nil && l != nil {
			f.appendOptions(WithLivePublisher(l))
		}
	}
}

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutCallback installs a sink built from a simple callback function.
func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...EdgeRuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
