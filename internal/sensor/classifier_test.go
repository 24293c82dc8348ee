package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func testClassifier() *Classifier {
	return NewClassifier([]Channel{
		{
			Name:          "GPS",
			Type:          domain.SensorAsynchronous,
			SyncedHeaders: []string{"$GPGGA", "$GPRMC"},
			IgnoreHeaders: []string{"$GPGSV", "$GPRMC"},
		},
		{
			Name:         "Depth",
			AsyncHeaders: []string{"$OHPR"},
		},
		{
			Name:      "Ramses",
			AddHeader: "RAMSES",
		},
	}, domain.SensorSynchronous)
}

func TestClassifyPrecedence(t *testing.T) {
	c := testClassifier()
	now := time.Now()

	cases := []struct {
		sensor string
		line   string
		header string
		want   domain.SensorType
	}{
		{"GPS", "$GPGGA,123519,4807.038,N", "$GPGGA", domain.SensorSynchronous},
		{"GPS", "$GPGSV,3,1,11", "$GPGSV", domain.SensorIgnored},
		// ignore wins over synced membership
		{"GPS", "$GPRMC,123519,A", "$GPRMC", domain.SensorIgnored},
		// declared type wins over the default
		{"GPS", "$GPVTG,054.7,T", "$GPVTG", domain.SensorAsynchronous},
		{"Depth", "$OHPR,1.2,3.4", "$OHPR", domain.SensorAsynchronous},
		// default type
		{"Depth", "$SDDPT,12.5", "$SDDPT", domain.SensorSynchronous},
	}

	for _, tc := range cases {
		d, err := c.Classify(domain.RawLine{SensorID: tc.sensor, Data: []byte(tc.line), ReceivedAt: now})
		if err != nil {
			t.Fatalf("classify %q: %v", tc.line, err)
		}
		if d.Header != tc.header {
			t.Fatalf("line %q: expected header %s, got %s", tc.line, tc.header, d.Header)
		}
		if d.Type != tc.want {
			t.Fatalf("line %q: expected %s, got %s", tc.line, tc.want, d.Type)
		}
		if !d.ReceivedAt.Equal(now) {
			t.Fatalf("expected receive time to be preserved")
		}
	}
}

func TestClassifyAddHeader(t *testing.T) {
	c := testClassifier()

	d, err := c.Classify(domain.RawLine{SensorID: "Ramses", Data: []byte(" 12.3,45.6\r\n")})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.Header != "RAMSES" {
		t.Fatalf("expected added header, got %s", d.Header)
	}
	if d.Data != "RAMSES,12.3,45.6" {
		t.Fatalf("unexpected normalized data %q", d.Data)
	}
}

func TestClassifyMalformed(t *testing.T) {
	c := testClassifier()

	lines := []domain.RawLine{
		{SensorID: "GPS", Data: []byte("   ")},
		{SensorID: "GPS", Data: []byte(",no,header")},
		{SensorID: "GPS", Data: []byte{0xff, 0xfe, 0x00}},
		{SensorID: "GPS", Data: []byte("$GP\x01GGA,1")},
	}
	for _, l := range lines {
		_, err := c.Classify(l)
		var pe *domain.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError for %q, got %v", l.Data, err)
		}
	}

	if _, err := c.Classify(domain.RawLine{SensorID: "GPS", Data: []byte("$GPGGA,1")}); err != nil {
		t.Fatalf("malformed lines must not affect later classification: %v", err)
	}
}

func TestClassifyUnconfiguredSensorUsesDefaultType(t *testing.T) {
	c := NewClassifier(nil, domain.SensorAsynchronous)

	d, err := c.Classify(domain.RawLine{SensorID: "nav", Data: []byte("$HEHDT,274.1,T")})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.Type != domain.SensorAsynchronous {
		t.Fatalf("expected default type, got %s", d.Type)
	}
	if d.Header != "$HEHDT" || d.SensorID != "nav" {
		t.Fatalf("unexpected datagram %+v", d)
	}

	if _, err := c.Classify(domain.RawLine{SensorID: "nav", Data: []byte(",no,header")}); err == nil {
		t.Fatalf("expected malformed line from an unconfigured sensor to fail")
	}
}
