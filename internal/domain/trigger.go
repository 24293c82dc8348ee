package domain

import (
	"fmt"
	"math"
	"time"
)

// TriggerEvent is one scheduling tick. It is created by the scheduler and
// never mutated afterwards.
type TriggerEvent struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// TriggerSource selects how a camera exposure is started.
type TriggerSource string

const (
	TriggerSoftware TriggerSource = "software"
	TriggerHardware TriggerSource = "hardware"
)

// HDRStep is a single sub-exposure of an HDR sequence.
type HDRStep struct {
	Label      string  `yaml:"label" json:"label"`
	Exposure   float64 `yaml:"exposure" json:"exposure"`
	Gain       float64 `yaml:"gain" json:"gain"`
	EmitSignal bool    `yaml:"emit_signal" json:"emit_signal"`
	SaveImage  bool    `yaml:"save_image" json:"save_image"`
}

// MaxHDRSteps bounds the number of sub-exposures per trigger.
const MaxHDRSteps = 4

// CameraProfile is the fully resolved, read-only configuration of one camera.
type CameraProfile struct {
	Name   string
	Serial string
	Label  string

	Exposure float64
	Gain     float64

	TriggerDivider    uint64
	SaveImageDivider  uint64
	StillImageDivider uint64
	VideoFrameDivider uint64

	SaveStills     bool
	SaveVideo      bool
	StillExtension string
	FrameExtension string

	HDREnabled  bool
	HDRSettings []HDRStep

	TriggerSource TriggerSource
	Driver        string
}

// ID returns the camera identity used in records and file names.
func (p CameraProfile) ID() string {
	if p.Serial == "" {
		return p.Name
	}
	return p.Name + "_" + p.Serial
}

// CaptureSettings are the camera settings in effect for one exposure.
type CaptureSettings struct {
	Exposure float64 `json:"exposure"`
	Gain     float64 `json:"gain"`
	HDRIndex int     `json:"hdr_index"`
	HDRLabel string  `json:"hdr_label,omitempty"`
}

// Frame is the image payload returned by a camera handle.
type Frame struct {
	Name       string    `json:"name"`
	Data       []byte    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Format     string    `json:"format"`
	CapturedAt time.Time `json:"captured_at"`
	Video      bool      `json:"video"`
}

// TriggerPeriod converts a rate in Hz into the tick period. The rate must be
// finite and positive and its period must fit between 1ns and the largest
// time.Duration.
func TriggerPeriod(rate float64) (time.Duration, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, &ConfigError{Field: "trigger_rate", Msg: fmt.Sprintf("must be a finite number > 0, got %v", rate)}
	}
	p := float64(time.Second) / rate
	if p < 1 || p >= math.MaxInt64 {
		return 0, &ConfigError{Field: "trigger_rate", Msg: fmt.Sprintf("rate %v gives a period outside 1ns..%s", rate, time.Duration(math.MaxInt64))}
	}
	return time.Duration(p), nil
}
