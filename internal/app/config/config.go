package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/CamFlow/internal/adapters/mqtt"
	"github.com/ghalamif/CamFlow/internal/adapters/sink"
	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Metadata    MetadataConfig    `yaml:"metadata"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Cameras     CamerasConfig     `yaml:"cameras"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Encoder     EncoderConfig     `yaml:"encoder"`
	Policy      ports.Policy      `yaml:"policy"`
	WAL         WALConfig         `yaml:"wal"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Control     ControlConfig     `yaml:"control"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`
}

type ApplicationConfig struct {
	OutputMode           domain.OutputMode `yaml:"output_mode"`
	OutputPath           string            `yaml:"output_path"`
	LogLevel             string            `yaml:"log_level"`
	AlwaysTriggerAtStart bool              `yaml:"always_trigger_at_start"`
}

type MetadataConfig struct {
	VesselName        string `yaml:"vessel_name"`
	SurveyName        string `yaml:"survey_name"`
	CameraName        string `yaml:"camera_name"`
	SurveyDescription string `yaml:"survey_description"`
}

type AcquisitionConfig struct {
	TriggerRate    float64       `yaml:"trigger_rate"`
	TriggerLimit   *int64        `yaml:"trigger_limit"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	DispatchBudget time.Duration `yaml:"dispatch_budget"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// Limit is the configured trigger limit, -1 when unbounded.
func (a AcquisitionConfig) Limit() int64 {
	if a.TriggerLimit == nil {
		return -1
	}
	return *a.TriggerLimit
}

type PersistenceConfig struct {
	Driver   string          `yaml:"driver"`
	JSONL    JSONLConfig     `yaml:"jsonl"`
	Postgres PostgresConfig  `yaml:"postgres"`
	AMQP     sink.AMQPConfig `yaml:"amqp"`
}

type JSONLConfig struct {
	// Path defaults to metadata.jsonl inside the deployment folder.
	Path  string `yaml:"path"`
	Fsync bool   `yaml:"fsync"`
}

type PostgresConfig struct {
	ConnString  string `yaml:"conn_string"`
	TablePrefix string `yaml:"table_prefix"`
}

type EncoderConfig struct {
	QueueLen int `yaml:"queue_len"`
	Workers  int `yaml:"workers"`
}

type MetricsConfig struct {
	Addr    string `yaml:"addr"`
	Disable bool   `yaml:"disable"`
}

type WALConfig struct {
	// Dir defaults to <output_path>/.wal.
	Dir string `yaml:"dir"`
}

type ControlConfig struct {
	HTTPAddr string      `yaml:"http_addr"`
	MQTT     mqtt.Config `yaml:"mqtt"`
}

// MQTTEnabled reports whether a broker is configured.
func (c ControlConfig) MQTTEnabled() bool { return c.MQTT.Broker != "" }

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes, defaults and validates a configuration document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Application.OutputMode == "" {
		c.Application.OutputMode = domain.OutputSeparate
	}
	c.Application.OutputMode = domain.OutputMode(strings.ToLower(string(c.Application.OutputMode)))
	if c.Application.OutputPath == "" {
		c.Application.OutputPath = "./data"
	}
	if c.Application.LogLevel == "" {
		c.Application.LogLevel = "info"
	}
	if c.Metadata.CameraName == "" {
		c.Metadata.CameraName = "CamFlow"
	}

	if c.Acquisition.TriggerRate == 0 {
		c.Acquisition.TriggerRate = 5
	}
	if c.Acquisition.TriggerLimit == nil {
		unbounded := int64(-1)
		c.Acquisition.TriggerLimit = &unbounded
	}
	if c.Acquisition.CaptureTimeout <= 0 {
		c.Acquisition.CaptureTimeout = 2 * time.Second
	}
	if c.Acquisition.DispatchBudget <= 0 {
		c.Acquisition.DispatchBudget = c.Acquisition.CaptureTimeout
	}
	if c.Acquisition.DrainTimeout <= 0 {
		c.Acquisition.DrainTimeout = 5 * time.Second
	}

	c.Sensors.applyDefaults()

	if c.Persistence.Driver == "" {
		c.Persistence.Driver = "jsonl"
	}
	c.Persistence.Driver = strings.ToLower(c.Persistence.Driver)
	if c.Persistence.Postgres.TablePrefix == "" {
		c.Persistence.Postgres.TablePrefix = "camflow_"
	}
	c.Persistence.AMQP.ApplyDefaults()

	if c.Encoder.QueueLen <= 0 {
		c.Encoder.QueueLen = 64
	}
	if c.Encoder.Workers <= 0 {
		c.Encoder.Workers = 2
	}

	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.RetryBackoff == 0 {
		c.Policy.RetryBackoff = 500 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}

	if c.WAL.Dir == "" {
		c.WAL.Dir = c.Application.OutputPath + "/.wal"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Control.MQTTEnabled() {
		c.Control.MQTT.ApplyDefaults()
	}

	c.Cameras.applyDefaults()
}

func (c *Config) validate() error {
	switch c.Application.OutputMode {
	case domain.OutputSeparate, domain.OutputCombined:
	default:
		return &domain.ConfigError{Field: "application.output_mode", Msg: fmt.Sprintf("unknown mode %q", c.Application.OutputMode)}
	}
	if _, err := domain.TriggerPeriod(c.Acquisition.TriggerRate); err != nil {
		return &domain.ConfigError{Field: "acquisition.trigger_rate", Msg: err.(*domain.ConfigError).Msg}
	}
	if c.Acquisition.Limit() < -1 {
		return &domain.ConfigError{Field: "acquisition.trigger_limit", Msg: "must be -1 or >= 0"}
	}
	if err := c.Cameras.validate(); err != nil {
		return err
	}
	if err := c.Sensors.validate(); err != nil {
		return err
	}

	switch c.Persistence.Driver {
	case "jsonl":
	case "postgres":
		if c.Persistence.Postgres.ConnString == "" {
			return &domain.ConfigError{Field: "persistence.postgres.conn_string", Msg: "required"}
		}
	case "amqp":
		if c.Persistence.AMQP.URL == "" {
			return &domain.ConfigError{Field: "persistence.amqp.url", Msg: "required"}
		}
	default:
		return &domain.ConfigError{Field: "persistence.driver", Msg: fmt.Sprintf("unknown driver %q", c.Persistence.Driver)}
	}

	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return &domain.ConfigError{Field: "policy.on_queue_full", Msg: fmt.Sprintf("unknown policy %q", c.Policy.OnQueueFull)}
	}
	switch c.Policy.OnWALFull {
	case "block", "drop":
	default:
		return &domain.ConfigError{Field: "policy.on_wal_full", Msg: fmt.Sprintf("unknown policy %q", c.Policy.OnWALFull)}
	}
	if !c.Metrics.Disable && c.Metrics.Addr == "" {
		return &domain.ConfigError{Field: "metrics.addr", Msg: "required"}
	}
	return nil
}
