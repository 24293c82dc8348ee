package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// SerialConfig describes an RS-232/RS-422 sensor port.
type SerialConfig struct {
	Port      string  `yaml:"port"`
	Baud      int     `yaml:"baud"`
	DataBits  int     `yaml:"data_bits"`
	Parity    string  `yaml:"parity"`
	StopBits  float64 `yaml:"stop_bits"`
	Delimiter string  `yaml:"delimiter"`
}

func (c *SerialConfig) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "none"
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Delimiter == "" {
		c.Delimiter = "\n"
	}
}

func (c SerialConfig) mode() (*serial.Mode, error) {
	m := &serial.Mode{BaudRate: c.Baud, DataBits: c.DataBits}
	switch strings.ToLower(c.Parity) {
	case "none", "n":
		m.Parity = serial.NoParity
	case "odd", "o":
		m.Parity = serial.OddParity
	case "even", "e":
		m.Parity = serial.EvenParity
	case "mark", "m":
		m.Parity = serial.MarkParity
	case "space", "s":
		m.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unknown parity %q", c.Parity)
	}
	switch c.StopBits {
	case 1:
		m.StopBits = serial.OneStopBit
	case 1.5:
		m.StopBits = serial.OnePointFiveStopBits
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %v", c.StopBits)
	}
	return m, nil
}

// Validate checks the port settings without opening the device.
func (c SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if len(c.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single byte")
	}
	_, err := c.mode()
	return err
}

// Serial streams delimited lines from a serial port.
type Serial struct {
	sensorID string
	cfg      SerialConfig
	open     func(port string, mode *serial.Mode) (io.ReadCloser, error)
}

func NewSerial(sensorID string, cfg SerialConfig) (*Serial, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sensor %s: %w", sensorID, err)
	}
	return &Serial{
		sensorID: sensorID,
		cfg:      cfg,
		open: func(port string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(port, mode)
		},
	}, nil
}

func (s *Serial) SensorID() string { return s.sensorID }

// Stream opens the port and reads until ctx is cancelled or the device
// fails. Cancelling ctx closes the port to unblock the pending read.
func (s *Serial) Stream(ctx context.Context, out chan<- domain.RawLine) error {
	mode, err := s.cfg.mode()
	if err != nil {
		return err
	}
	port, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Port, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		port.Close()
	}()

	err = scanLines(ctx, s.sensorID, port, s.cfg.Delimiter[0], out)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("read %s: %w", s.cfg.Port, err)
}

var _ ports.LineSource = (*Serial)(nil)
