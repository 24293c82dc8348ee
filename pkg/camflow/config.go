package camflow

import (
	"github.com/ghalamif/CamFlow/internal/adapters/camera"
	"github.com/ghalamif/CamFlow/internal/adapters/mqtt"
	"github.com/ghalamif/CamFlow/internal/adapters/opcua"
	"github.com/ghalamif/CamFlow/internal/adapters/sink"
	"github.com/ghalamif/CamFlow/internal/adapters/transport"
	"github.com/ghalamif/CamFlow/internal/app/config"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// CameraConfig is a resolved camera profile plus simulator settings.
	CameraConfig = config.CameraConfig
	// SimConfig configures the simulated camera driver.
	SimConfig = camera.SimConfig
	// SensorConfig is one installed sensor.
	SensorConfig = config.SensorConfig
	// SerialConfig holds serial port settings for a sensor.
	SerialConfig = transport.SerialConfig
	// UDPConfig holds the listen address of a UDP sensor.
	UDPConfig = transport.UDPConfig
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig describes a monitored tag.
	OPCUANodeConfig = opcua.NodeConfig
	// MQTTConfig configures the broker used for control and live data.
	MQTTConfig = mqtt.Config
	// AMQPConfig configures the AMQP record sink.
	AMQPConfig = sink.AMQPConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes, defaults and validates YAML held in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
