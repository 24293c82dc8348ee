// Package control maps remote commands onto the trigger scheduler.
package control

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// Command is a control request as received over MQTT or HTTP.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response acknowledges one Command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Target is the scheduler surface the control plane drives.
type Target interface {
	Start() error
	Stop()
	SetTriggerRate(rate float64) error
	Status() domain.Status
}

// Dispatcher executes commands against a Target. It is safe for concurrent use.
type Dispatcher struct {
	target Target
	obs    ports.Observability
	now    func() time.Time
}

func NewDispatcher(target Target, obs ports.Observability) *Dispatcher {
	return &Dispatcher{target: target, obs: obs, now: time.Now}
}

func (d *Dispatcher) Dispatch(cmd Command) Response {
	resp := d.dispatch(cmd)
	resp.CommandAck = cmd.Command
	resp.Timestamp = d.now().UTC().Format(time.RFC3339Nano)
	if resp.Error != "" {
		d.obs.LogWarn("control_command_failed", ports.F("command", cmd.Command), ports.F("error", resp.Error))
	} else {
		d.obs.LogInfo("control_command", ports.F("command", cmd.Command))
	}
	return resp
}

func (d *Dispatcher) dispatch(cmd Command) Response {
	switch cmd.Command {
	case "status", "get_status":
		return Response{Status: "success", Data: statusData(d.target.Status())}

	case "start", "start_triggering":
		if err := d.target.Start(); err != nil {
			return failed(err)
		}
		return Response{Status: "success", Data: map[string]any{"state": string(domain.StateRunning)}}

	case "stop", "stop_triggering":
		d.target.Stop()
		return Response{Status: "success", Data: map[string]any{"state": string(domain.StateStopped)}}

	case "set_trigger_rate":
		rate, err := floatParam(cmd.Params, "rate_hz", "rate", "trigger_rate")
		if err != nil {
			return failed(err)
		}
		if err := d.target.SetTriggerRate(rate); err != nil {
			return failed(err)
		}
		return Response{Status: "success", Data: map[string]any{"trigger_rate": rate}}
	}
	return Response{Status: "error", Error: fmt.Sprintf("unknown command: %s", cmd.Command)}
}

func failed(err error) Response {
	return Response{Status: "error", Error: err.Error()}
}

func statusData(st domain.Status) map[string]any {
	data := map[string]any{
		"state":        string(st.State),
		"triggers":     st.Triggers,
		"trigger_rate": st.TriggerRate,
		"image_number": st.ImageNumber,
		"cameras":      st.Cameras,
	}
	if st.Reason != domain.StopNone {
		data["reason"] = string(st.Reason)
	}
	if st.Fault != "" {
		data["fault"] = st.Fault
	}
	return data
}

// floatParam accepts JSON numbers and numeric strings under any of keys.
func floatParam(params map[string]any, keys ...string) (float64, error) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid %q parameter: %w", k, err)
			}
			return f, nil
		default:
			return 0, fmt.Errorf("invalid %q parameter type %T", k, v)
		}
	}
	return 0, fmt.Errorf("missing %q parameter", keys[0])
}
