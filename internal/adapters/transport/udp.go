package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// UDPConfig binds a sensor that broadcasts datagrams (NMEA over UDP etc).
type UDPConfig struct {
	Listen string `yaml:"listen"`
}

// UDP streams lines from datagrams received on a local address. A datagram
// may carry several newline separated lines.
type UDP struct {
	sensorID string
	addr     string

	mu    sync.Mutex
	bound net.Addr
}

func NewUDP(sensorID string, cfg UDPConfig) (*UDP, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("sensor %s: udp listen address is required", sensorID)
	}
	if _, err := net.ResolveUDPAddr("udp", cfg.Listen); err != nil {
		return nil, fmt.Errorf("sensor %s: %w", sensorID, err)
	}
	return &UDP{sensorID: sensorID, addr: cfg.Listen}, nil
}

func (u *UDP) SensorID() string { return u.sensorID }

// LocalAddr is the bound address while Stream is running.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bound
}

func (u *UDP) Stream(ctx context.Context, out chan<- domain.RawLine) error {
	addr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", u.addr, err)
	}
	u.mu.Lock()
	u.bound = conn.LocalAddr()
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.bound = nil
		u.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	buf := make([]byte, MaxLineLength)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			return fmt.Errorf("read %s: %w", u.addr, err)
		}
		for _, line := range bytes.Split(buf[:n], []byte{'\n'}) {
			if err := emit(ctx, u.sensorID, line, out); err != nil {
				return err
			}
		}
	}
}

var _ ports.LineSource = (*UDP)(nil)
