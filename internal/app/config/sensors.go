package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghalamif/CamFlow/internal/adapters/opcua"
	"github.com/ghalamif/CamFlow/internal/adapters/transport"
	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
	"github.com/ghalamif/CamFlow/internal/sensor"
)

const (
	TransportSerial   = "serial"
	TransportUDP      = "udp"
	TransportOPCUA    = "opcua"
	TransportExternal = "external"
)

type SensorsConfig struct {
	DefaultType domain.SensorType `yaml:"default_type"`
	// SynchronousTimeout is in seconds; -1 disables freshness checks.
	SynchronousTimeout *float64       `yaml:"synchronous_timeout"`
	Installed          []SensorConfig `yaml:"-"`

	InstalledSensors map[string]SensorConfig `yaml:"installed_sensors"`
}

// SensorConfig is one entry of installed_sensors. The map key becomes Name.
type SensorConfig struct {
	Name              string            `yaml:"-"`
	Type              domain.SensorType `yaml:"type"`
	SyncedHeaders     []string          `yaml:"synced_headers"`
	AsyncHeaders      []string          `yaml:"async_headers"`
	IgnoreHeaders     []string          `yaml:"ignore_headers"`
	AddHeader         string            `yaml:"add_header"`
	LoggingIntervalMS int64             `yaml:"logging_interval_ms"`

	Transport  string                 `yaml:"transport"`
	SerialPort string                 `yaml:"serial_port"`
	SerialBaud int                    `yaml:"serial_baud"`
	Serial     transport.SerialConfig `yaml:"serial"`
	UDP        transport.UDPConfig    `yaml:"udp"`
	OPCUA      opcua.Config           `yaml:"opcua"`
}

// Timeout converts synchronous_timeout into a cache timeout.
func (s SensorsConfig) Timeout() time.Duration {
	if s.SynchronousTimeout == nil {
		return 5 * time.Second
	}
	if *s.SynchronousTimeout < 0 {
		return -1
	}
	return time.Duration(*s.SynchronousTimeout * float64(time.Second))
}

// Channels returns the classifier configuration of every installed sensor.
func (s SensorsConfig) Channels() []sensor.Channel {
	out := make([]sensor.Channel, 0, len(s.Installed))
	for _, sc := range s.Installed {
		out = append(out, sensor.Channel{
			Name:            sc.Name,
			Type:            sc.Type,
			SyncedHeaders:   sc.SyncedHeaders,
			AsyncHeaders:    sc.AsyncHeaders,
			IgnoreHeaders:   sc.IgnoreHeaders,
			AddHeader:       sc.AddHeader,
			LoggingInterval: time.Duration(sc.LoggingIntervalMS) * time.Millisecond,
		})
	}
	return out
}

// Sources lists installed sensors that own a transport.
func (s SensorsConfig) Sources() []SensorConfig {
	var out []SensorConfig
	for _, sc := range s.Installed {
		if sc.Transport != TransportExternal {
			out = append(out, sc)
		}
	}
	return out
}

func (s *SensorsConfig) applyDefaults() {
	if s.DefaultType == "" {
		s.DefaultType = domain.SensorSynchronous
	}
	s.Installed = s.Installed[:0]
	for _, name := range sortedKeys(s.InstalledSensors) {
		sc := s.InstalledSensors[name]
		sc.Name = name
		sc.AddHeader = strings.TrimSpace(sc.AddHeader)
		sc.Transport = strings.ToLower(sc.Transport)
		if sc.SerialPort != "" && sc.Serial.Port == "" {
			sc.Serial.Port = sc.SerialPort
		}
		if sc.SerialBaud != 0 && sc.Serial.Baud == 0 {
			sc.Serial.Baud = sc.SerialBaud
		}
		if sc.Transport == "" {
			switch {
			case sc.Serial.Port != "":
				sc.Transport = TransportSerial
			case sc.UDP.Listen != "":
				sc.Transport = TransportUDP
			case sc.OPCUA.Endpoint != "":
				sc.Transport = TransportOPCUA
			default:
				sc.Transport = TransportExternal
			}
		}
		switch sc.Transport {
		case TransportSerial:
			if sc.Serial.Baud == 0 {
				sc.Serial.Baud = 4800
			}
			sc.Serial.ApplyDefaults()
		case TransportOPCUA:
			sc.OPCUA.ApplyDefaults()
		}
		s.Installed = append(s.Installed, sc)
	}
}

func (s *SensorsConfig) validate() error {
	t, ok := domain.ParseSensorType(strings.ToLower(string(s.DefaultType)))
	if !ok {
		return &domain.ConfigError{Field: "sensors.default_type", Msg: fmt.Sprintf("unknown type %q", s.DefaultType)}
	}
	s.DefaultType = t

	for i := range s.Installed {
		sc := &s.Installed[i]
		field := "sensors.installed_sensors." + sc.Name
		if sc.Type != "" {
			t, ok := domain.ParseSensorType(strings.ToLower(string(sc.Type)))
			if !ok {
				return &domain.ConfigError{Field: field + ".type", Msg: fmt.Sprintf("unknown type %q", sc.Type)}
			}
			sc.Type = t
		}
		if sc.LoggingIntervalMS < 0 {
			return &domain.ConfigError{Field: field + ".logging_interval_ms", Msg: "must be >= 0"}
		}
		var err error
		switch sc.Transport {
		case TransportSerial:
			err = sc.Serial.Validate()
		case TransportUDP:
			if sc.UDP.Listen == "" {
				err = fmt.Errorf("listen is required")
			}
		case TransportOPCUA:
			err = sc.OPCUA.Validate()
		case TransportExternal:
		default:
			return &domain.ConfigError{Field: field + ".transport", Msg: fmt.Sprintf("unknown transport %q", sc.Transport)}
		}
		if err != nil {
			return &domain.ConfigError{Field: field + "." + sc.Transport, Msg: err.Error()}
		}
	}
	return nil
}

// NewSource builds the line source of an installed sensor.
func (sc SensorConfig) NewSource() (ports.LineSource, error) {
	switch sc.Transport {
	case TransportSerial:
		src, err := transport.NewSerial(sc.Name, sc.Serial)
		if err != nil {
			return nil, err
		}
		return src, nil
	case TransportUDP:
		src, err := transport.NewUDP(sc.Name, sc.UDP)
		if err != nil {
			return nil, err
		}
		return src, nil
	case TransportOPCUA:
		src, err := opcua.NewSource(sc.Name, sc.OPCUA)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("sensor %s: transport %q has no line source", sc.Name, sc.Transport)
}
