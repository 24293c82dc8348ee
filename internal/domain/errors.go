package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull   = errors.New("camflow: queue full")
	ErrWALFull     = errors.New("camflow: wal full")
	ErrCameraBusy  = errors.New("camflow: camera busy with previous trigger")
	ErrNotRunning  = errors.New("camflow: scheduler not running")
	ErrStopped     = errors.New("camflow: scheduler stopped")
	ErrFeedClosed  = errors.New("camflow: feed closed")
	ErrEncoderBusy = errors.New("camflow: encoder queue full")
)

// ConfigError is fatal at startup.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// ParseError marks a sensor line that could not be classified.
type ParseError struct {
	SensorID string
	Line     string
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s (%q)", e.SensorID, e.Msg, e.Line)
}

// CameraFault is a per-camera, per-tick failure.
type CameraFault struct {
	Camera   string
	Sequence uint64
	Op       string
	Err      error
}

func (e *CameraFault) Error() string {
	return fmt.Sprintf("camera %s seq=%d %s: %v", e.Camera, e.Sequence, e.Op, e.Err)
}

func (e *CameraFault) Unwrap() error { return e.Err }

// IoFault is a persistence or encoder failure.
type IoFault struct {
	Op  string
	Err error
}

func (e *IoFault) Error() string { return fmt.Sprintf("io %s: %v", e.Op, e.Err) }

func (e *IoFault) Unwrap() error { return e.Err }

// ClockFault stops the scheduler.
type ClockFault struct {
	Msg string
}

func (e *ClockFault) Error() string { return "clock: " + e.Msg }
