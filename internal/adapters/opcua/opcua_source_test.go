package opcua

import (
	"testing"

	"github.com/gopcua/opcua/ua"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{Endpoint: "opc.tcp://plc:4840", Nodes: []NodeConfig{{NodeID: "ns=2;s=Winch.Payout"}}}
	cfg.ApplyDefaults()
	if cfg.Nodes[0].Header != "ns=2;s=Winch.Payout" {
		t.Fatalf("expected node id as default header, got %s", cfg.Nodes[0].Header)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := Config{Endpoint: "opc.tcp://plc:4840", Nodes: []NodeConfig{{NodeID: "ns=2;i=1", Header: "A,B"}}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected comma header to be rejected")
	}
	if _, err := NewSource("Winch", Config{}); err == nil {
		t.Fatalf("expected missing endpoint to fail")
	}
}

func TestRenderDataChange(t *testing.T) {
	src, err := NewSource("Winch", Config{Endpoint: "opc.tcp://plc:4840", Nodes: []NodeConfig{{NodeID: "ns=2;i=1", Header: "PAYOUT"}}})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	headers := map[uint32]string{1: "PAYOUT"}

	item := &ua.MonitoredItemNotification{
		ClientHandle: 1,
		Value:        &ua.DataValue{Value: ua.MustVariant(float64(12.5))},
	}
	line, ok := src.render(headers, item)
	if !ok || string(line.Data) != "PAYOUT,12.5" || line.SensorID != "Winch" {
		t.Fatalf("unexpected line %+v ok=%v", line, ok)
	}

	unknown := &ua.MonitoredItemNotification{ClientHandle: 9, Value: &ua.DataValue{Value: ua.MustVariant(int32(1))}}
	if _, ok := src.render(headers, unknown); ok {
		t.Fatalf("expected unknown handle to be skipped")
	}
}
