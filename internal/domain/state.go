package domain

import "time"

// OutputMode selects how deployments are laid out on disk.
type OutputMode string

const (
	OutputSeparate OutputMode = "separate"
	OutputCombined OutputMode = "combined"
)

// DeploymentState describes the active deployment.
type DeploymentState struct {
	ID                 string     `json:"id"`
	Mode               OutputMode `json:"mode"`
	OutputRoot         string     `json:"output_root"`
	Dir                string     `json:"dir"`
	CurrentImageNumber uint64     `json:"current_image_number"`
	StartedAt          time.Time  `json:"started_at"`
}

// SchedulerState is the lifecycle state of the trigger scheduler.
type SchedulerState string

const (
	StateIdle    SchedulerState = "idle"
	StateRunning SchedulerState = "running"
	StateStopped SchedulerState = "stopped"
)

// StopReason explains a transition to StateStopped.
type StopReason string

const (
	StopNone         StopReason = ""
	StopLimitReached StopReason = "limit_reached"
	StopExternal     StopReason = "external"
	StopFault        StopReason = "fault"
)

// CameraStatus reports per-camera health for the control surface.
type CameraStatus struct {
	ID                string    `json:"id"`
	Captures          uint64    `json:"captures"`
	Faults            uint64    `json:"faults"`
	ConsecutiveFaults uint64    `json:"consecutive_faults"`
	LastError         string    `json:"last_error,omitempty"`
	LastFaultAt       time.Time `json:"last_fault_at,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State       SchedulerState `json:"state"`
	Reason      StopReason     `json:"reason,omitempty"`
	Triggers    uint64         `json:"triggers"`
	TriggerRate float64        `json:"trigger_rate"`
	ImageNumber uint64         `json:"image_number"`
	Cameras     []CameraStatus `json:"cameras"`
	Fault       string         `json:"fault,omitempty"`
}
