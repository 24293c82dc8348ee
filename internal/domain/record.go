package domain

import "time"

// RecordKind discriminates the payload of a Record.
type RecordKind string

const (
	RecordImage      RecordKind = "image"
	RecordDropped    RecordKind = "dropped"
	RecordAsync      RecordKind = "async"
	RecordDeployment RecordKind = "deployment"
)

// Record is the canonical unit flowing through the WAL → queue → sink pipeline.
type Record struct {
	ID           string     `json:"id"`
	Kind         RecordKind `json:"kind"`
	DeploymentID string     `json:"deployment_id"`

	Image      *ImageRecord      `json:"image,omitempty"`
	Dropped    *DroppedRecord    `json:"dropped,omitempty"`
	Async      *SensorReading    `json:"async,omitempty"`
	Deployment *DeploymentRecord `json:"deployment,omitempty"`
}

// ImageRecord links one saved image or frame to the sensor snapshot of its tick.
type ImageRecord struct {
	Number     uint64          `json:"number"`
	Camera     string          `json:"camera"`
	Sequence   uint64          `json:"sequence"`
	Time       time.Time       `json:"time"`
	Filename   string          `json:"filename"`
	Settings   CaptureSettings `json:"settings"`
	Still      bool            `json:"still"`
	VideoFrame bool            `json:"video_frame"`
	Sensors    []SensorReading `json:"sensors,omitempty"`
}

// DroppedRecord notes a camera that failed to deliver on a tick.
type DroppedRecord struct {
	Sequence uint64    `json:"sequence"`
	Camera   string    `json:"camera"`
	Time     time.Time `json:"time"`
	Reason   string    `json:"reason"`
}

// DeploymentRecord describes the start or end of a deployment.
type DeploymentRecord struct {
	Mode        string    `json:"mode"`
	OutputDir   string    `json:"output_dir"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	StopReason  string    `json:"stop_reason,omitempty"`
	Vessel      string    `json:"vessel,omitempty"`
	Survey      string    `json:"survey,omitempty"`
	CameraName  string    `json:"camera_name,omitempty"`
	Description string    `json:"description,omitempty"`
	FirstNumber uint64    `json:"first_number"`
}
