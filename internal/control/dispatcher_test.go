package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

type fakeTarget struct {
	started, stopped bool
	rate             float64
	startErr         error
}

func (f *fakeTarget) Start() error { f.started = true; return f.startErr }
func (f *fakeTarget) Stop()        { f.stopped = true }
func (f *fakeTarget) SetTriggerRate(r float64) error {
	if r <= 0 {
		return &domain.ConfigError{Field: "trigger_rate", Msg: "must be > 0"}
	}
	f.rate = r
	return nil
}
func (f *fakeTarget) Status() domain.Status {
	return domain.Status{State: domain.StateRunning, Triggers: 12, TriggerRate: 5, ImageNumber: 40,
		Cameras: []domain.CameraStatus{{ID: "Cam1", Faults: 2, ConsecutiveFaults: 1}}}
}

func TestDispatchCommands(t *testing.T) {
	tgt := &fakeTarget{}
	d := NewDispatcher(tgt, nopObs{})

	if r := d.Dispatch(Command{Command: "start_triggering"}); r.Status != "success" || !tgt.started {
		t.Fatalf("start failed: %+v", r)
	}
	if r := d.Dispatch(Command{Command: "set_trigger_rate", Params: map[string]any{"rate_hz": 2.5}}); r.Status != "success" || tgt.rate != 2.5 {
		t.Fatalf("set rate failed: %+v", r)
	}
	if r := d.Dispatch(Command{Command: "set_trigger_rate", Params: map[string]any{"rate": "4"}}); r.Status != "success" || tgt.rate != 4 {
		t.Fatalf("set rate from string failed: %+v", r)
	}
	if r := d.Dispatch(Command{Command: "set_trigger_rate", Params: map[string]any{"rate_hz": -1.0}}); r.Status != "error" {
		t.Fatalf("expected invalid rate to fail: %+v", r)
	}
	if r := d.Dispatch(Command{Command: "set_trigger_rate"}); r.Status != "error" || !strings.Contains(r.Error, "missing") {
		t.Fatalf("expected missing param error: %+v", r)
	}

	st := d.Dispatch(Command{Command: "status"})
	if st.Status != "success" || st.Data["triggers"] != uint64(12) || st.Data["image_number"] != uint64(40) {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.CommandAck != "status" || st.Timestamp == "" {
		t.Fatalf("expected ack and timestamp: %+v", st)
	}

	if r := d.Dispatch(Command{Command: "stop"}); r.Status != "success" || !tgt.stopped {
		t.Fatalf("stop failed: %+v", r)
	}
	if r := d.Dispatch(Command{Command: "reboot"}); r.Status != "error" {
		t.Fatalf("expected unknown command error: %+v", r)
	}
}

func TestDispatchStartAfterStop(t *testing.T) {
	d := NewDispatcher(&fakeTarget{startErr: domain.ErrStopped}, nopObs{})
	r := d.Dispatch(Command{Command: "start"})
	if r.Status != "error" || r.Error != domain.ErrStopped.Error() {
		t.Fatalf("expected stopped error, got %+v", r)
	}
}

func TestHTTPHandler(t *testing.T) {
	tgt := &fakeTarget{}
	h := NewHTTPHandler(NewDispatcher(tgt, nopObs{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data["state"] != "running" {
		t.Fatalf("unexpected status body %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control", strings.NewReader(`{"command":"set_trigger_rate","params":{"rate_hz":3}}`)))
	if rec.Code != http.StatusOK || tgt.rate != 3 {
		t.Fatalf("control failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control", strings.NewReader(`{not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/control", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

type nopObs struct{}

func (nopObs) LogDebug(string, ...ports.Field)                   {}
func (nopObs) LogInfo(string, ...ports.Field)                    {}
func (nopObs) LogWarn(string, ...ports.Field)                    {}
func (nopObs) LogError(string, error, ...ports.Field)            {}
func (nopObs) LogCritical(string, error, ...ports.Field)         {}
func (nopObs) IncCounter(string, float64)                        {}
func (nopObs) ObserveLatency(string, float64)                    {}
func (nopObs) SetGauge(string, float64)                          {}
func (nopObs) RecordDLQ(ports.WALEntryID, *domain.Record, error) {}
