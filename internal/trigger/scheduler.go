package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
	"github.com/ghalamif/CamFlow/internal/sensor"
)

// Config holds the scheduling parameters of one deployment.
type Config struct {
	TriggerRate    float64
	TriggerLimit   int64
	CaptureTimeout time.Duration
	DispatchBudget time.Duration
	DrainTimeout   time.Duration
}

// Camera pairs a resolved profile with its driver handle.
type Camera struct {
	Profile domain.CameraProfile
	Handle  ports.Camera
}

// Snapshotter yields the sensor readings fresh at a tick.
type Snapshotter interface {
	Snapshot(at time.Time) sensor.Snapshot
}

// Numbering allocates image numbers and names within a deployment.
type Numbering interface {
	NextNumber() uint64
	Current() uint64
	ImageName(number uint64, at time.Time, camera, ext string) string
	ImagePath(video bool, camera, name string) string
}

type Option func(*Scheduler)

func WithClock(c ports.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithEncoder(e ports.Encoder) Option {
	return func(s *Scheduler) { s.encoder = e }
}

func WithLive(l ports.LivePublisher) Option {
	return func(s *Scheduler) { s.live = l }
}

// Scheduler owns the trigger clock and the global trigger counter. It fans
// each tick out to the participating cameras and emits one record per saved
// image.
type Scheduler struct {
	cfg     Config
	cameras []*cameraSlot
	cache   Snapshotter
	numbers Numbering
	records ports.RecordWriter
	encoder ports.Encoder
	live    ports.LivePublisher
	clock   ports.Clock
	obs     ports.Observability

	mu       sync.Mutex
	state    domain.SchedulerState
	reason   domain.StopReason
	faultMsg string
	rate     float64
	interval time.Duration

	encoderRetry time.Duration

	triggers atomic.Uint64

	startOnce   sync.Once
	stopOnce    sync.Once
	started     chan struct{}
	stopping    chan struct{}
	rateChanged chan struct{}
	done        chan struct{}

	inflight sync.WaitGroup
}

type cameraSlot struct {
	profile   domain.CameraProfile
	id        string
	handle    ports.Camera
	exposures []Exposure
	busy      atomic.Bool

	mu     sync.Mutex
	status domain.CameraStatus
}

type shot struct {
	exposure Exposure
	frame    *domain.Frame
}

type captureResult struct {
	slot  *cameraSlot
	shots []shot
	err   error
}

func New(cfg Config, cameras []Camera, cache Snapshotter, numbers Numbering, records ports.RecordWriter, obs ports.Observability, opts ...Option) (*Scheduler, error) {
	interval, err := domain.TriggerPeriod(cfg.TriggerRate)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Field = "acquisition.trigger_rate"
		}
		return nil, err
	}
	if cache == nil || numbers == nil || records == nil || obs == nil {
		return nil, errors.New("scheduler: cache, numbering, records and observability are required")
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 2 * time.Second
	}
	if cfg.DispatchBudget <= 0 {
		cfg.DispatchBudget = cfg.CaptureTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}

	s := &Scheduler{
		cfg:          cfg,
		cache:        cache,
		numbers:      numbers,
		records:      records,
		obs:          obs,
		clock:        ports.SystemClock{},
		state:        domain.StateIdle,
		rate:         cfg.TriggerRate,
		interval:     interval,
		encoderRetry: 20 * time.Millisecond,
		started:      make(chan struct{}),
		stopping:     make(chan struct{}),
		rateChanged:  make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, c := range cameras {
		if c.Handle == nil {
			return nil, fmt.Errorf("scheduler: camera %s has no handle", c.Profile.ID())
		}
		id := c.Profile.ID()
		s.cameras = append(s.cameras, &cameraSlot{
			profile:   c.Profile,
			id:        id,
			handle:    c.Handle,
			exposures: Expand(c.Profile),
			status:    domain.CameraStatus{ID: id},
		})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start moves an idle scheduler to running. Run must be active or called later.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateStopped {
		return domain.ErrStopped
	}
	s.startOnce.Do(func() { close(s.started) })
	return nil
}

// Stop requests Stopped(external). In-flight captures are allowed to finish
// or time out before Done is closed.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
	s.mu.Lock()
	if s.state != domain.StateIdle {
		// Run owns the transition once it is running
		s.mu.Unlock()
		return
	}
	s.markStoppedLocked(domain.StopExternal, "")
	s.mu.Unlock()
	s.closeDone(domain.StopExternal)
}

// SetTriggerRate changes the tick period. A running loop re-arms the pending
// tick at one new period after the last tick.
func (s *Scheduler) SetTriggerRate(rate float64) error {
	interval, err := domain.TriggerPeriod(rate)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == domain.StateStopped {
		s.mu.Unlock()
		return domain.ErrStopped
	}
	s.rate = rate
	s.interval = interval
	s.mu.Unlock()
	select {
	case s.rateChanged <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed once the scheduler reaches Stopped.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) Status() domain.Status {
	s.mu.Lock()
	st := domain.Status{
		State:       s.state,
		Reason:      s.reason,
		Fault:       s.faultMsg,
		TriggerRate: s.rate,
	}
	s.mu.Unlock()

	st.Triggers = s.triggers.Load()
	st.ImageNumber = s.numbers.Current()
	st.Cameras = make([]domain.CameraStatus, 0, len(s.cameras))
	for _, c := range s.cameras {
		c.mu.Lock()
		st.Cameras = append(st.Cameras, c.status)
		c.mu.Unlock()
	}
	return st
}

// Run blocks until the scheduler stops. It waits for Start unless the
// scheduler was already started, and returns a ClockFault if the clock fails.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case <-s.started:
	case <-s.stopping:
		s.finish(domain.StopExternal, "")
		return nil
	case <-ctx.Done():
		s.Stop()
		s.finish(domain.StopExternal, "")
		return nil
	}

	s.mu.Lock()
	if s.state == domain.StateStopped {
		// stopped between Start and Run
		s.mu.Unlock()
		return nil
	}
	s.state = domain.StateRunning
	s.mu.Unlock()
	s.obs.LogInfo("scheduler_running",
		ports.F("trigger_rate", s.cfg.TriggerRate),
		ports.F("trigger_limit", s.cfg.TriggerLimit),
		ports.F("cameras", len(s.cameras)))

	s.applyBaselines(ctx)

	reason, err := s.loop(ctx)

	s.waitInflight()
	msg := ""
	if err != nil {
		msg = err.Error()
		s.obs.LogCritical("scheduler_clock_fault", err, ports.F("seq", s.triggers.Load()))
	}
	s.finish(reason, msg)
	return err
}

func (s *Scheduler) loop(ctx context.Context) (domain.StopReason, error) {
	var (
		seq  uint64
		last time.Time
	)
	next := s.clock.Now()
	for {
		if s.cfg.TriggerLimit >= 0 && seq >= uint64(s.cfg.TriggerLimit) {
			return domain.StopLimitReached, nil
		}

		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.StopExternal, nil
		case <-s.stopping:
			timer.Stop()
			return domain.StopExternal, nil
		case <-s.rateChanged:
			timer.Stop()
			if seq > 0 {
				next = s.following(last)
			}
			continue
		case at, ok := <-timer.C():
			if !ok {
				return domain.StopFault, &domain.ClockFault{Msg: "timer channel closed"}
			}
			s.tick(ctx, domain.TriggerEvent{Sequence: seq, Timestamp: at})
			seq++
			s.triggers.Store(seq)

			last = next
			next = s.following(last)
		}
	}
}

// following returns the tick due one period after from. A tick that is
// already late fires now and the period restarts from it; missed ticks are
// not replayed.
func (s *Scheduler) following(from time.Time) time.Time {
	next := from.Add(s.period())
	if now := s.clock.Now(); next.Before(now) {
		return now
	}
	return next
}

func (s *Scheduler) period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) tick(ctx context.Context, ev domain.TriggerEvent) {
	start := time.Now()
	defer func() {
		s.obs.ObserveLatency("camflow_tick_duration_seconds", time.Since(start).Seconds())
	}()
	s.obs.IncCounter("camflow_triggers_total", 1)

	results := make(chan captureResult, len(s.cameras))
	launched := 0
	for _, c := range s.cameras {
		if !Participates(ev.Sequence, c.profile.TriggerDivider) {
			continue
		}
		if !c.busy.CompareAndSwap(false, true) {
			s.fault(c, ev, &domain.CameraFault{Camera: c.id, Sequence: ev.Sequence, Op: "trigger", Err: domain.ErrCameraBusy})
			continue
		}
		launched++
		s.inflight.Add(1)
		go func(c *cameraSlot) {
			defer s.inflight.Done()
			defer c.busy.Store(false)
			results <- s.capture(ctx, c, ev)
		}(c)
	}

	var arrived []captureResult
	if launched > 0 {
		budget := time.NewTimer(s.cfg.DispatchBudget)
	join:
		for len(arrived) < launched {
			select {
			case r := <-results:
				arrived = append(arrived, r)
			case <-budget.C:
				break join
			}
		}
		budget.Stop()
	}

	snap := s.cache.Snapshot(ev.Timestamp).Readings()
	for _, r := range arrived {
		s.process(ev, snap, r)
	}

	if late := launched - len(arrived); late > 0 {
		s.obs.LogWarn("dispatch_budget_exceeded", ports.F("seq", ev.Sequence), ports.F("pending", late))
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			for i := 0; i < late; i++ {
				s.process(ev, snap, <-results)
			}
		}()
	}
}

// capture runs every exposure of one trigger on one camera. HDR steps
// configure, capture, then restore the baseline; the first error abandons the
// remaining steps.
func (s *Scheduler) capture(ctx context.Context, c *cameraSlot, ev domain.TriggerEvent) captureResult {
	res := captureResult{slot: c}
	base := context.WithoutCancel(ctx)
	hdr := c.profile.HDREnabled && len(c.profile.HDRSettings) > 0

	for _, exp := range c.exposures {
		if hdr {
			if err := s.withTimeout(base, func(cctx context.Context) error {
				return c.handle.Configure(cctx, exp.Settings.Exposure, exp.Settings.Gain)
			}); err != nil {
				res.err = &domain.CameraFault{Camera: c.id, Sequence: ev.Sequence, Op: "configure", Err: err}
				return res
			}
		}

		var frame *domain.Frame
		err := s.withTimeout(base, func(cctx context.Context) error {
			var err error
			frame, err = c.handle.Capture(cctx)
			return err
		})
		if err == nil && frame == nil {
			err = errors.New("no frame returned")
		}

		if hdr {
			if rerr := s.withTimeout(base, func(cctx context.Context) error {
				return c.handle.Configure(cctx, c.profile.Exposure, c.profile.Gain)
			}); rerr != nil && err == nil {
				res.shots = append(res.shots, shot{exposure: exp, frame: frame})
				res.err = &domain.CameraFault{Camera: c.id, Sequence: ev.Sequence, Op: "reset", Err: rerr}
				return res
			}
		}
		if err != nil {
			res.err = &domain.CameraFault{Camera: c.id, Sequence: ev.Sequence, Op: "capture", Err: err}
			return res
		}
		res.shots = append(res.shots, shot{exposure: exp, frame: frame})
	}
	return res
}

func (s *Scheduler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CaptureTimeout)
	defer cancel()
	err := fn(cctx)
	if err == nil && cctx.Err() != nil {
		err = cctx.Err()
	}
	return err
}

func (s *Scheduler) process(ev domain.TriggerEvent, snap []domain.SensorReading, r captureResult) {
	c := r.slot
	if r.err != nil {
		s.fault(c, ev, r.err)
	} else {
		c.mu.Lock()
		c.status.Captures++
		c.status.ConsecutiveFaults = 0
		c.mu.Unlock()
	}

	p := c.profile
	save := Participates(ev.Sequence, p.SaveImageDivider)
	still := save && p.SaveStills && Participates(ev.Sequence, p.StillImageDivider)
	video := save && p.SaveVideo && Participates(ev.Sequence, p.VideoFrameDivider)

	for _, sh := range r.shots {
		if s.live != nil && sh.exposure.EmitSignal {
			s.live.PublishFrame(c.id, sh.exposure.Settings, sh.frame)
		}
		if !sh.exposure.SaveImage {
			continue
		}
		if still {
			s.save(ev, c, sh, snap, false)
		}
		if video {
			s.save(ev, c, sh, snap, true)
		}
	}
}

func (s *Scheduler) save(ev domain.TriggerEvent, c *cameraSlot, sh shot, snap []domain.SensorReading, video bool) {
	ext := c.profile.StillExtension
	if video {
		ext = c.profile.FrameExtension
	}
	number := s.numbers.NextNumber()
	name := s.numbers.ImageName(number, ev.Timestamp, c.id, ext)

	frame := *sh.frame
	frame.Name = s.numbers.ImagePath(video, c.id, name)
	frame.Video = video

	if s.encoder != nil {
		err := s.encoder.SubmitFrame(c.id, &frame)
		if err != nil {
			// give a full encoder queue a moment to drain before the single retry
			time.Sleep(s.encoderRetry)
			err = s.encoder.SubmitFrame(c.id, &frame)
		}
		if err != nil {
			ioErr := &domain.IoFault{Op: "submit_frame", Err: err}
			s.obs.IncCounter("camflow_record_write_failures_total", 1)
			s.obs.LogError("encoder_submit_failed", ioErr,
				ports.F("seq", ev.Sequence), ports.F("camera", c.id), ports.F("number", number))
			s.writeDropped(ev, c, ioErr)
			return
		}
	}

	rec := &domain.Record{
		Kind: domain.RecordImage,
		Image: &domain.ImageRecord{
			Number:     number,
			Camera:     c.id,
			Sequence:   ev.Sequence,
			Time:       ev.Timestamp,
			Filename:   frame.Name,
			Settings:   sh.exposure.Settings,
			Still:      !video,
			VideoFrame: video,
			Sensors:    snap,
		},
	}
	if err := s.records.Write(rec); err != nil {
		s.obs.LogError("image_record_write_failed", err,
			ports.F("seq", ev.Sequence), ports.F("camera", c.id), ports.F("number", number))
		return
	}
	s.obs.IncCounter("camflow_images_saved_total", 1)
	s.obs.SetGauge("camflow_image_number", float64(number))
}

func (s *Scheduler) fault(c *cameraSlot, ev domain.TriggerEvent, err error) {
	c.mu.Lock()
	c.status.Faults++
	c.status.ConsecutiveFaults++
	c.status.LastError = err.Error()
	c.status.LastFaultAt = ev.Timestamp
	consecutive := c.status.ConsecutiveFaults
	c.mu.Unlock()

	s.obs.IncCounter("camflow_camera_faults_total", 1)
	s.obs.LogError("camera_fault", err,
		ports.F("seq", ev.Sequence),
		ports.F("camera", c.id),
		ports.F("consecutive", consecutive))
	s.writeDropped(ev, c, err)
}

func (s *Scheduler) writeDropped(ev domain.TriggerEvent, c *cameraSlot, err error) {
	rec := &domain.Record{
		Kind: domain.RecordDropped,
		Dropped: &domain.DroppedRecord{
			Sequence: ev.Sequence,
			Camera:   c.id,
			Time:     ev.Timestamp,
			Reason:   err.Error(),
		},
	}
	if werr := s.records.Write(rec); werr != nil {
		s.obs.LogError("dropped_record_write_failed", werr, ports.F("seq", ev.Sequence), ports.F("camera", c.id))
	}
}

func (s *Scheduler) applyBaselines(ctx context.Context) {
	for _, c := range s.cameras {
		err := s.withTimeout(ctx, func(cctx context.Context) error {
			return c.handle.Configure(cctx, c.profile.Exposure, c.profile.Gain)
		})
		if err != nil {
			s.obs.LogError("camera_configure_failed", err, ports.F("camera", c.id))
		}
	}
}

func (s *Scheduler) waitInflight() {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	t := time.NewTimer(s.cfg.DrainTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.obs.LogWarn("scheduler_drain_timeout", ports.F("timeout", s.cfg.DrainTimeout.String()))
	}
}

func (s *Scheduler) finish(reason domain.StopReason, fault string) {
	s.mu.Lock()
	if s.state == domain.StateStopped {
		s.mu.Unlock()
		return
	}
	s.markStoppedLocked(reason, fault)
	s.mu.Unlock()
	s.closeDone(reason)
}

func (s *Scheduler) markStoppedLocked(reason domain.StopReason, fault string) {
	s.state = domain.StateStopped
	s.reason = reason
	s.faultMsg = fault
}

// closeDone must be called exactly once, by whoever moved the state to Stopped.
func (s *Scheduler) closeDone(reason domain.StopReason) {
	s.obs.LogInfo("scheduler_stopped", ports.F("reason", string(reason)), ports.F("triggers", s.triggers.Load()))
	close(s.done)
}
