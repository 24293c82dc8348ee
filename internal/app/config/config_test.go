package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camflow.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
cameras:
  Cam1: {}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Application.OutputMode != domain.OutputSeparate {
		t.Fatalf("expected separate mode, got %s", cfg.Application.OutputMode)
	}
	if cfg.Acquisition.TriggerRate != 5 || cfg.Acquisition.Limit() != -1 {
		t.Fatalf("unexpected acquisition defaults %+v", cfg.Acquisition)
	}
	if cfg.Acquisition.DispatchBudget != 2*time.Second {
		t.Fatalf("expected dispatch budget to follow capture timeout, got %s", cfg.Acquisition.DispatchBudget)
	}
	if cfg.Policy.IdleSleep != 5*time.Millisecond {
		t.Fatalf("expected IdleSleep default 5ms, got %s", cfg.Policy.IdleSleep)
	}
	if cfg.Persistence.Driver != "jsonl" {
		t.Fatalf("expected jsonl driver, got %s", cfg.Persistence.Driver)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.WAL.Dir != "./data/.wal" {
		t.Fatalf("unexpected wal dir %s", cfg.WAL.Dir)
	}
	if cfg.Sensors.Timeout() != 5*time.Second {
		t.Fatalf("unexpected sync timeout %s", cfg.Sensors.Timeout())
	}
	if cfg.Path != path {
		t.Fatalf("expected path to be recorded")
	}

	if len(cfg.Cameras.Resolved) != 1 {
		t.Fatalf("expected one camera, got %d", len(cfg.Cameras.Resolved))
	}
	p := cfg.Cameras.Resolved[0].Profile
	if p.Name != "Cam1" || p.Exposure != 4000 || p.Gain != 18 || !p.SaveStills || p.StillExtension != ".jpg" {
		t.Fatalf("unexpected built-in profile %+v", p)
	}
}

func TestCameraProfilesLayerFieldByField(t *testing.T) {
	cfg, err := Parse([]byte(`
cameras:
  installed: [Right_2, Left_1]
  default:
    gain: 10
    still_image_divider: 3
    hdr_enabled: true
    hdr_settings:
      - {exposure: 100, gain: 1, emit_signal: true, save_image: true}
      - {label: Long, exposure: 8000, gain: 2, save_image: true}
  Left_1:
    exposure_us: 2500
    hdr_enabled: false
    still_image_extension: png
  Right_2:
    trigger_divider: 0
    video_frame_divider: -4
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Cameras.Resolved) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(cfg.Cameras.Resolved))
	}

	right := cfg.Cameras.Resolved[0].Profile
	left := cfg.Cameras.Resolved[1].Profile
	if right.Name != "Right_2" || left.Name != "Left_1" {
		t.Fatalf("installed order not kept: %s, %s", right.Name, left.Name)
	}

	if left.Exposure != 2500 || left.Gain != 10 || left.StillImageDivider != 3 || left.HDREnabled {
		t.Fatalf("unexpected left profile %+v", left)
	}
	if left.StillExtension != ".png" {
		t.Fatalf("expected dotted extension, got %q", left.StillExtension)
	}

	if right.TriggerDivider != 1 || right.VideoFrameDivider != 1 {
		t.Fatalf("dividers below 1 must clamp to 1: %+v", right)
	}
	if !right.HDREnabled || len(right.HDRSettings) != 2 {
		t.Fatalf("expected inherited HDR settings, got %+v", right.HDRSettings)
	}
	if right.HDRSettings[0].Label != "Image1" || right.HDRSettings[1].Label != "Long" {
		t.Fatalf("unexpected HDR labels %+v", right.HDRSettings)
	}
}

func TestSensorsResolveTransports(t *testing.T) {
	cfg, err := Parse([]byte(`
cameras:
  Cam1: {}
sensors:
  default_type: async
  synchronous_timeout: -1
  installed_sensors:
    GPS:
      type: synced
      serial_port: /dev/ttyUSB0
      ignore_headers: [$GPGSV]
    Depth:
      udp:
        listen: 127.0.0.1:5005
      logging_interval_ms: 1000
    PLC:
      opcua:
        endpoint: opc.tcp://plc:4840
        nodes:
          - node_id: ns=2;s=Temp
    RAMSES:
      add_header: " RAMSES "
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Sensors.DefaultType != domain.SensorAsynchronous {
		t.Fatalf("unexpected default type %s", cfg.Sensors.DefaultType)
	}
	if cfg.Sensors.Timeout() >= 0 {
		t.Fatalf("expected disabled timeout, got %s", cfg.Sensors.Timeout())
	}

	byName := map[string]SensorConfig{}
	for _, s := range cfg.Sensors.Installed {
		byName[s.Name] = s
	}
	if gps := byName["GPS"]; gps.Transport != TransportSerial || gps.Serial.Baud != 4800 || gps.Type != domain.SensorSynchronous {
		t.Fatalf("unexpected GPS config %+v", gps)
	}
	if byName["Depth"].Transport != TransportUDP || byName["PLC"].Transport != TransportOPCUA {
		t.Fatalf("transport inference failed: %+v", byName)
	}
	if r := byName["RAMSES"]; r.Transport != TransportExternal || r.AddHeader != "RAMSES" {
		t.Fatalf("unexpected RAMSES config %+v", r)
	}
	if n := len(cfg.Sensors.Sources()); n != 3 {
		t.Fatalf("expected 3 sources, got %d", n)
	}

	channels := cfg.Sensors.Channels()
	for _, ch := range channels {
		if ch.Name == "Depth" && ch.LoggingInterval != time.Second {
			t.Fatalf("unexpected logging interval %s", ch.LoggingInterval)
		}
	}

	src, err := byName["Depth"].NewSource()
	if err != nil || src.SensorID() != "Depth" {
		t.Fatalf("build udp source: %v", err)
	}
	if _, err := byName["RAMSES"].NewSource(); err == nil {
		t.Fatalf("external sensors have no line source")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]struct {
		yaml  string
		field string
	}{
		"output mode": {`
application: {output_mode: merged}
cameras: {Cam1: {}}`, "application.output_mode"},
		"trigger rate": {`
acquisition: {trigger_rate: -2}
cameras: {Cam1: {}}`, "acquisition.trigger_rate"},
		"trigger rate nan": {`
acquisition: {trigger_rate: .nan}
cameras: {Cam1: {}}`, "acquisition.trigger_rate"},
		"trigger rate inf": {`
acquisition: {trigger_rate: .inf}
cameras: {Cam1: {}}`, "acquisition.trigger_rate"},
		"trigger rate below one tick per ns": {`
acquisition: {trigger_rate: 1e-13}
cameras: {Cam1: {}}`, "acquisition.trigger_rate"},
		"no cameras": {`
acquisition: {trigger_rate: 1}`, "cameras"},
		"too many hdr steps": {`
cameras:
  Cam1:
    hdr_enabled: true
    hdr_settings: [{exposure: 1}, {exposure: 2}, {exposure: 3}, {exposure: 4}, {exposure: 5}]`, "cameras.Cam1.hdr_settings"},
		"hdr without steps": {`
cameras: {Cam1: {hdr_enabled: true}}`, "cameras.Cam1.hdr_settings"},
		"sensor type": {`
cameras: {Cam1: {}}
sensors: {installed_sensors: {GPS: {type: sometimes}}}`, "sensors.installed_sensors.GPS.type"},
		"transport": {`
cameras: {Cam1: {}}
sensors: {installed_sensors: {GPS: {transport: carrier-pigeon}}}`, "sensors.installed_sensors.GPS.transport"},
		"default type": {`
cameras: {Cam1: {}}
sensors: {default_type: ignored}`, "sensors.default_type"},
		"trigger source": {`
cameras: {Cam1: {trigger_source: laser}}`, "cameras.Cam1.trigger_source"},
		"postgres conn": {`
cameras: {Cam1: {}}
persistence: {driver: postgres}`, "persistence.postgres.conn_string"},
		"queue policy": {`
cameras: {Cam1: {}}
policy: {on_queue_full: explode}`, "policy.on_queue_full"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			var cerr *domain.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tc.field {
				t.Fatalf("expected field %s, got %s (%v)", tc.field, cerr.Field, err)
			}
		})
	}
}

func TestTriggerLimitZeroIsKept(t *testing.T) {
	cfg, err := Parse([]byte("acquisition: {trigger_limit: 0}\ncameras: {Cam1: {}}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Acquisition.Limit() != 0 {
		t.Fatalf("expected limit 0, got %d", cfg.Acquisition.Limit())
	}
}

func TestLoadReportsPath(t *testing.T) {
	path := writeConfig(t, "application: {output_mode: nope}\ncameras: {Cam1: {}}\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error mentioning %s, got %v", path, err)
	}
}
