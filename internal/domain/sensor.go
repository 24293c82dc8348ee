package domain

import "time"

// SensorType is the classification of a sensor datagram.
type SensorType string

const (
	SensorSynchronous  SensorType = "synchronous"
	SensorAsynchronous SensorType = "asynchronous"
	SensorIgnored      SensorType = "ignored"
)

// ParseSensorType accepts the spellings used in field configuration files.
func ParseSensorType(s string) (SensorType, bool) {
	switch s {
	case "synchronous", "synced", "sync":
		return SensorSynchronous, true
	case "asynchronous", "async":
		return SensorAsynchronous, true
	}
	return "", false
}

// RawLine is one undecoded line from a sensor transport.
type RawLine struct {
	SensorID   string
	Data       []byte
	ReceivedAt time.Time
}

// Datagram is a classified sensor line.
type Datagram struct {
	SensorID   string
	Header     string
	Data       string
	ReceivedAt time.Time
	Type       SensorType
}

// ChannelKey addresses one latest-value slot of the synchronization cache.
type ChannelKey struct {
	SensorID string `json:"sensor_id"`
	Header   string `json:"header"`
}

// SensorReading is a cached or persisted sensor value.
type SensorReading struct {
	SensorID   string    `json:"sensor_id"`
	Header     string    `json:"header"`
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// Key returns the cache slot of the reading.
func (r SensorReading) Key() ChannelKey {
	return ChannelKey{SensorID: r.SensorID, Header: r.Header}
}
