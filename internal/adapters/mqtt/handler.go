package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/CamFlow/internal/control"
	"github.com/ghalamif/CamFlow/internal/ports"
)

const commandBuffer = 16

// Handler receives commands on the control topic and answers on the
// status topic.
type Handler struct {
	client     paho.Client
	cfg        Config
	dispatcher *control.Dispatcher
	obs        ports.Observability
	commands   chan control.Command
}

func NewHandler(client paho.Client, cfg Config, d *control.Dispatcher, obs ports.Observability) *Handler {
	return &Handler{
		client:     client,
		cfg:        cfg,
		dispatcher: d,
		obs:        obs,
		commands:   make(chan control.Command, commandBuffer),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.ControlTopic()
	token := h.client.Subscribe(topic, h.cfg.QoS, h.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	h.obs.LogInfo("mqtt_control_subscribed", ports.F("topic", topic))

	go h.process(ctx)
	return nil
}

// Stop unsubscribes from the control topic.
func (h *Handler) Stop() {
	if h.client.IsConnected() {
		h.client.Unsubscribe(h.cfg.ControlTopic()).WaitTimeout(2 * time.Second)
	}
}

func (h *Handler) onMessage(_ paho.Client, msg paho.Message) {
	var cmd control.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.obs.LogWarn("mqtt_control_invalid", ports.F("topic", msg.Topic()), ports.F("error", err.Error()))
		h.respond(control.Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}
	select {
	case h.commands <- cmd:
	default:
		h.obs.LogWarn("mqtt_control_queue_full", ports.F("command", cmd.Command))
	}
}

func (h *Handler) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.respond(h.dispatcher.Dispatch(cmd))
		}
	}
}

func (h *Handler) respond(resp control.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		h.obs.LogError("mqtt_response_encode_failed", err)
		return
	}
	token := h.client.Publish(h.cfg.StatusTopic(), h.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.obs.LogWarn("mqtt_response_timeout", ports.F("command", resp.CommandAck))
		return
	}
	if err := token.Error(); err != nil {
		h.obs.LogError("mqtt_response_failed", err, ports.F("command", resp.CommandAck))
	}
}
