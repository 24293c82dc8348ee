package camflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/CamFlow/internal/adapters/camera"
	"github.com/ghalamif/CamFlow/internal/adapters/encoder"
	"github.com/ghalamif/CamFlow/internal/adapters/mqtt"
	"github.com/ghalamif/CamFlow/internal/adapters/observability"
	"github.com/ghalamif/CamFlow/internal/adapters/queue"
	"github.com/ghalamif/CamFlow/internal/adapters/sink"
	"github.com/ghalamif/CamFlow/internal/adapters/wal"
	"github.com/ghalamif/CamFlow/internal/app/config"
	"github.com/ghalamif/CamFlow/internal/app/pipeline"
	"github.com/ghalamif/CamFlow/internal/control"
	"github.com/ghalamif/CamFlow/internal/deployment"
	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
	"github.com/ghalamif/CamFlow/internal/sensor"
	"github.com/ghalamif/CamFlow/internal/trigger"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("edge runtime already started")

// CameraFactory opens the driver handle of a configured camera.
type CameraFactory func(CameraConfig) (Camera, error)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sink          Sink
	wal           WAL
	queue         RecordQueue
	observability Observability
	cameras       CameraFactory
	encoder       Encoder
	live          LivePublisher
	clock         Clock
	sources       []LineSource
	logOutput     io.Writer
	now           func() time.Time
}

// WithSink injects a custom sink so records can be sent to any database or API.
func WithSink(s Sink) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithRecordQueue injects a custom queue implementation.
func WithRecordQueue(q RecordQueue) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithCameraFactory opens camera handles for drivers other than "sim".
func WithCameraFactory(f CameraFactory) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.cameras = f
	}
}

// WithEncoder replaces the file encoder.
func WithEncoder(e Encoder) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.encoder = e
	}
}

// WithLivePublisher receives the live read path in place of MQTT.
func WithLivePublisher(l LivePublisher) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.live = l
	}
}

// WithClock drives the trigger schedule from a custom clock.
func WithClock(c Clock) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// WithLineSources adds sensor sources that are not described in the config.
// Their lines are classified with sensors.default_type.
func WithLineSources(src ...LineSource) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sources = append(o.sources, src...)
	}
}

// WithLogOutput sets where the console copy of the log goes (stdout by default).
func WithLogOutput(w io.Writer) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.logOutput = w
	}
}

// EdgeRuntime wires sensors, cameras and the trigger scheduler to the
// WAL → queue → sink record pipeline and exposes lifecycle hooks for
// embedding CamFlow inside any Go service.
type EdgeRuntime struct {
	cfg       *Config
	policy    ports.Policy
	obs       ports.Observability
	registry  *prometheus.Registry
	logFile   *os.File
	layout    *deployment.Layout
	first     uint64
	wal       ports.WAL
	queue     ports.RecordQueue
	sink      ports.Sink
	recorder  *pipeline.Recorder
	ingestor  *sensor.Ingestor
	sources   []ports.LineSource
	feeds     map[string]*ExternalFeed
	cameras   []trigger.Camera
	encoder   ports.Encoder
	scheduler *trigger.Scheduler
	dispatch  *control.Dispatcher
	live      ports.LivePublisher
	mqttCfg   mqtt.Config
	mqtt      paho.Client
	handler   *mqtt.Handler
	db        *sql.DB

	metricsSrv *http.Server
	controlSrv *http.Server

	cancelSensors context.CancelFunc
	cancelIngest  context.CancelFunc
	cancelControl context.CancelFunc
	gaugeStopCh   chan struct{}
	ingestDoneCh  chan struct{}
	ingestErr     error
	schedDoneCh   chan struct{}
	schedErr      error

	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewEdgeRuntime begins a deployment and bootstraps the default adapters
// (file WAL, in-memory queue, configured sink, simulated or injected cameras,
// file encoder, Prometheus observability). EdgeRuntimeOption values override
// any dependency.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (rt *EdgeRuntime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}
	now := overrides.now
	if now == nil {
		now = time.Now
	}

	layout, err := deployment.Begin(cfg.Application.OutputMode, cfg.Application.OutputPath, now())
	if err != nil {
		return nil, err
	}

	e := &EdgeRuntime{
		cfg:      cfg,
		policy:   cfg.Policy,
		layout:   layout,
		first:    layout.Current(),
		registry: prometheus.NewRegistry(),
		feeds:    make(map[string]*ExternalFeed),
		mqttCfg:  cfg.Control.MQTT,
	}
	defer func() {
		if err != nil {
			e.closeResources()
		}
	}()

	e.obs = overrides.observability
	if e.obs == nil {
		if e.obs, err = e.defaultObservability(overrides.logOutput); err != nil {
			return nil, err
		}
	}
	e.obs.LogInfo("deployment_begin",
		ports.F("deployment", layout.State().ID),
		ports.F("mode", string(cfg.Application.OutputMode)),
		ports.F("dir", layout.Dir()),
		ports.F("first_number", layout.Current()))

	if cfg.Path != "" {
		if err := layout.CopySettings(cfg.Path); err != nil {
			e.obs.LogWarn("settings_copy_failed", ports.F("error", err.Error()))
		}
	}

	if e.wal = overrides.wal; e.wal == nil {
		fw, err := wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return nil, err
		}
		e.wal = fw
	}
	if e.queue = overrides.queue; e.queue == nil {
		e.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}
	if _, err := pipeline.ReplayWAL(e.wal, e.queue, cfg.Policy, e.obs); err != nil {
		return nil, err
	}

	if e.sink = overrides.sink; e.sink == nil {
		if e.sink, err = e.defaultSink(); err != nil {
			return nil, err
		}
	}

	e.recorder = pipeline.NewRecorder(e.wal, e.queue, cfg.Policy, e.obs, layout.State().ID)

	e.live = overrides.live
	if e.live == nil && cfg.Control.MQTTEnabled() {
		if e.mqtt, err = mqtt.Connect(e.mqttCfg, e.obs); err != nil {
			return nil, err
		}
		e.live = mqtt.NewPublisher(e.mqtt, e.mqttCfg, e.obs)
	}

	cache := sensor.NewCache(cfg.Sensors.Timeout())
	classifier := sensor.NewClassifier(cfg.Sensors.Channels(), cfg.Sensors.DefaultType)
	e.ingestor = sensor.NewIngestor(classifier, cache, e.recorder, e.obs, sensor.WithLive(e.live))
	if err := e.buildSources(overrides.sources); err != nil {
		return nil, err
	}

	factory := overrides.cameras
	for _, cc := range cfg.Cameras.Resolved {
		h, err := openCamera(cc, factory)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", cc.Profile.ID(), err)
		}
		e.cameras = append(e.cameras, trigger.Camera{Profile: cc.Profile, Handle: h})
	}

	if e.encoder = overrides.encoder; e.encoder == nil {
		e.encoder = encoder.NewFileEncoder(layout.Dir(), cfg.Encoder.QueueLen, cfg.Encoder.Workers, e.obs)
	}

	schedOpts := []trigger.Option{trigger.WithEncoder(e.encoder), trigger.WithLive(e.live)}
	if overrides.clock != nil {
		schedOpts = append(schedOpts, trigger.WithClock(overrides.clock))
	}
	e.scheduler, err = trigger.New(trigger.Config{
		TriggerRate:    cfg.Acquisition.TriggerRate,
		TriggerLimit:   cfg.Acquisition.Limit(),
		CaptureTimeout: cfg.Acquisition.CaptureTimeout,
		DispatchBudget: cfg.Acquisition.DispatchBudget,
		DrainTimeout:   cfg.Acquisition.DrainTimeout,
	}, e.cameras, cache, layout, e.recorder, e.obs, schedOpts...)
	if err != nil {
		return nil, err
	}
	e.dispatch = control.NewDispatcher(e.scheduler, e.obs)
	return e, nil
}

func (e *EdgeRuntime) defaultObservability(console io.Writer) (ports.Observability, error) {
	if console == nil {
		console = os.Stdout
	}
	start := e.layout.State().StartedAt.Format("D20060102-T150405")
	f, err := os.OpenFile(filepath.Join(e.layout.LogDir(), start+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	e.logFile = f

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger := observability.NewLogger(io.MultiWriter(console, f), e.cfg.Application.LogLevel)
	return observability.NewPromObs(
		observability.WithLogger(logger),
		observability.WithRegisterer(e.registry),
	), nil
}

func (e *EdgeRuntime) defaultSink() (ports.Sink, error) {
	p := e.cfg.Persistence
	switch p.Driver {
	case "postgres":
		db, err := sql.Open("postgres", p.Postgres.ConnString)
		if err != nil {
			return nil, err
		}
		e.db = db
		s := sink.NewPostgresSink(db, p.Postgres.TablePrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return s, nil
	case "amqp":
		s, err := sink.NewAMQPSink(p.AMQP)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		path := p.JSONL.Path
		if path == "" {
			path = filepath.Join(e.layout.Dir(), "metadata.jsonl")
		}
		s, err := sink.NewJSONLSink(path, p.JSONL.Fsync)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (e *EdgeRuntime) buildSources(extra []ports.LineSource) error {
	for _, sc := range e.cfg.Sensors.Installed {
		if sc.Transport == config.TransportExternal {
			feed := NewExternalFeed(sc.Name, 0)
			e.feeds[sc.Name] = feed
			e.sources = append(e.sources, feed)
			continue
		}
		src, err := sc.NewSource()
		if err != nil {
			return err
		}
		e.sources = append(e.sources, src)
	}
	for _, src := range extra {
		if src != nil {
			e.sources = append(e.sources, src)
		}
	}
	return nil
}

func openCamera(cc CameraConfig, factory CameraFactory) (Camera, error) {
	if factory != nil {
		h, err := factory(cc)
		if err != nil || h != nil {
			return h, err
		}
	}
	if cc.Profile.Driver == "sim" {
		return camera.NewSim(cc.Profile.ID(), cc.Sim), nil
	}
	return nil, fmt.Errorf("no driver for %q", cc.Profile.Driver)
}

// Start launches sensor ingestion, the ingest pipeline, the control plane
// and the scheduler loop. Triggering begins immediately when
// always_trigger_at_start is set; otherwise on StartTriggering or a start
// command. It returns immediately; call Run to block on a context instead.
func (e *EdgeRuntime) Start() error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}
	err := ErrAlreadyStarted
	e.startOnce.Do(func() { err = e.start() })
	return err
}

func (e *EdgeRuntime) start() error {
	e.writeDeploymentRecord(time.Time{}, "")

	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	e.cancelIngest = cancelIngest
	e.ingestDoneCh = make(chan struct{})
	go func() {
		defer close(e.ingestDoneCh)
		e.ingestErr = pipeline.RunIngestPipeline(ingestCtx, e.wal, e.queue, e.sink, e.policy, e.obs)
	}()

	sensorCtx, cancelSensors := context.WithCancel(context.Background())
	e.cancelSensors = cancelSensors
	e.ingestor.Start(sensorCtx, e.sources...)

	controlCtx, cancelControl := context.WithCancel(context.Background())
	e.cancelControl = cancelControl
	if e.mqtt != nil {
		e.handler = mqtt.NewHandler(e.mqtt, e.mqttCfg, e.dispatch, e.obs)
		if err := e.handler.Start(controlCtx); err != nil {
			e.obs.LogError("mqtt_control_unavailable", err)
			e.handler = nil
		}
	}
	e.startHTTP()

	e.schedDoneCh = make(chan struct{})
	go func() {
		defer close(e.schedDoneCh)
		e.schedErr = e.scheduler.Run(context.Background())
	}()
	if e.cfg.Application.AlwaysTriggerAtStart {
		return e.scheduler.Start()
	}
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled
// or the scheduler stops on its own (trigger limit, clock fault, stop
// command). It then shuts down gracefully.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		if errors.Is(err, ErrAlreadyStarted) {
			return err
		}
		return errors.Join(err, e.Shutdown(context.Background()))
	}
	select {
	case <-ctx.Done():
	case <-e.scheduler.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Acquisition.DrainTimeout+10*time.Second)
	defer cancel()
	err := e.Shutdown(shutdownCtx)
	return errors.Join(e.schedErr, err)
}

// Shutdown stops triggering, waits for in-flight captures, drains pending
// sensor and image records into the sink and releases every resource.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() { e.shutdownErr = e.shutdown(ctx) })
	return e.shutdownErr
}

func (e *EdgeRuntime) shutdown(ctx context.Context) error {
	var errs []error

	e.scheduler.Stop()
	if e.schedDoneCh != nil {
		if err := waitCh(ctx, e.schedDoneCh); err != nil {
			errs = append(errs, fmt.Errorf("scheduler drain: %w", err))
		}
		st := e.scheduler.Status()
		e.writeDeploymentRecord(time.Now(), string(st.Reason))
		e.obs.LogInfo("deployment_end",
			ports.F("reason", string(st.Reason)),
			ports.F("triggers", st.Triggers),
			ports.F("next_number", st.ImageNumber))
	}

	if e.cancelSensors != nil {
		e.cancelSensors()
		e.ingestor.Wait()
	}
	for _, f := range e.feeds {
		f.Close()
	}
	if c, ok := e.encoder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if e.cancelControl != nil {
		e.cancelControl()
	}
	if e.handler != nil {
		e.handler.Stop()
	}

	if e.cancelIngest != nil {
		e.cancelIngest()
		if err := waitCh(ctx, e.ingestDoneCh); err != nil {
			errs = append(errs, fmt.Errorf("ingest drain: %w", err))
		} else if e.ingestErr != nil {
			errs = append(errs, e.ingestErr)
		}
	}

	if e.gaugeStopCh != nil {
		close(e.gaugeStopCh)
	}
	for _, srv := range []*http.Server{e.metricsSrv, e.controlSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := e.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *EdgeRuntime) closeResources() error {
	var errs []error
	for _, c := range e.cameras {
		if err := c.Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", c.Profile.ID(), err))
		}
	}
	if e.mqtt != nil && e.mqtt.IsConnected() {
		e.mqtt.Disconnect(250)
	}
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	} else if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	if e.wal != nil {
		if err := e.wal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.logFile != nil {
		if err := e.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func waitCh(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EdgeRuntime) writeDeploymentRecord(ended time.Time, reason string) {
	st := e.layout.State()
	md := e.cfg.Metadata
	rec := &domain.Record{
		ID:   st.ID + "-begin",
		Kind: domain.RecordDeployment,
		Deployment: &domain.DeploymentRecord{
			Mode:        string(st.Mode),
			OutputDir:   st.Dir,
			StartedAt:   st.StartedAt,
			EndedAt:     ended,
			StopReason:  reason,
			Vessel:      md.VesselName,
			Survey:      md.SurveyName,
			CameraName:  md.CameraName,
			Description: md.SurveyDescription,
			FirstNumber: e.first,
		},
	}
	if !ended.IsZero() {
		rec.ID = st.ID + "-end"
	}
	if err := e.recorder.Write(rec); err != nil {
		e.obs.LogError("deployment_record_failed", err, ports.F("deployment", st.ID))
	}
}

func (e *EdgeRuntime) startHTTP() {
	e.gaugeStopCh = make(chan struct{})
	go e.recordResourceGauges(e.gaugeStopCh, time.Second)

	controlHandler := control.NewHTTPHandler(e.dispatch)
	if !e.cfg.Metrics.Disable {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if e.cfg.Control.HTTPAddr == "" {
			mux.Handle("/status", controlHandler)
			mux.Handle("/control", controlHandler)
		}
		e.metricsSrv = e.serve("metrics", e.cfg.Metrics.Addr, mux)
	}
	if e.cfg.Control.HTTPAddr != "" {
		e.controlSrv = e.serve("control", e.cfg.Control.HTTPAddr, controlHandler)
	}
}

func (e *EdgeRuntime) serve(name, addr string, h http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.obs.LogError("http_server_exited", err, ports.F("server", name), ports.F("addr", addr))
		}
	}()
	return srv
}

func (e *EdgeRuntime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := e.wal.Stats()
			e.obs.SetGauge("camflow_wal_size_bytes", float64(stats.SizeBytes))
			e.obs.SetGauge("camflow_queue_length", float64(e.queue.Len()))
		}
	}
}

// StartTriggering moves the scheduler from idle to running.
func (e *EdgeRuntime) StartTriggering() error { return e.scheduler.Start() }

// StopTriggering stops the scheduler for good; Run then shuts down.
func (e *EdgeRuntime) StopTriggering() { e.scheduler.Stop() }

// SetTriggerRate changes the trigger rate from the next tick on.
func (e *EdgeRuntime) SetTriggerRate(rate float64) error { return e.scheduler.SetTriggerRate(rate) }

// Status reports scheduler and per-camera state.
func (e *EdgeRuntime) Status() Status { return e.scheduler.Status() }

// Done is closed when the scheduler has stopped.
func (e *EdgeRuntime) Done() <-chan struct{} { return e.scheduler.Done() }

// Dispatch executes a control command as the MQTT and HTTP handlers do.
func (e *EdgeRuntime) Dispatch(cmd Command) Response { return e.dispatch.Dispatch(cmd) }

// Feed returns the line feed of a sensor configured with transport "external".
func (e *EdgeRuntime) Feed(sensorID string) (*ExternalFeed, bool) {
	f, ok := e.feeds[sensorID]
	return f, ok
}

// DeploymentDir is the folder images and logs of this deployment go to.
func (e *EdgeRuntime) DeploymentDir() string { return e.layout.Dir() }

// DeploymentID identifies this deployment in persisted records.
func (e *EdgeRuntime) DeploymentID() string { return e.layout.State().ID }
