package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

type sensorMessage struct {
	SensorID   string    `json:"sensor_id"`
	Header     string    `json:"header"`
	Data       string    `json:"data"`
	Type       string    `json:"type"`
	ReceivedAt time.Time `json:"received_at"`
}

type frameMessage struct {
	Camera   string                 `json:"camera"`
	Settings domain.CaptureSettings `json:"settings"`
	Frame    *domain.Frame          `json:"frame"`
	Image    []byte                 `json:"image,omitempty"`
}

// Publisher is the live read path. Publishing never waits on the broker;
// a message the client cannot take is counted and dropped.
type Publisher struct {
	client paho.Client
	cfg    Config
	obs    ports.Observability
}

func NewPublisher(client paho.Client, cfg Config, obs ports.Observability) *Publisher {
	return &Publisher{client: client, cfg: cfg, obs: obs}
}

func (p *Publisher) PublishSensor(d domain.Datagram) {
	payload, err := json.Marshal(sensorMessage{
		SensorID:   d.SensorID,
		Header:     d.Header,
		Data:       d.Data,
		Type:       string(d.Type),
		ReceivedAt: d.ReceivedAt,
	})
	if err != nil {
		p.obs.LogWarn("mqtt_encode_failed", ports.F("sensor", d.SensorID), ports.F("error", err.Error()))
		return
	}
	p.publish(p.cfg.SensorTopic(d.SensorID, d.Header), payload)
}

func (p *Publisher) PublishFrame(cameraID string, settings domain.CaptureSettings, frame *domain.Frame) {
	msg := frameMessage{Camera: cameraID, Settings: settings, Frame: frame}
	if p.cfg.PublishFrames && frame != nil {
		msg.Image = frame.Data
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.obs.LogWarn("mqtt_encode_failed", ports.F("camera", cameraID), ports.F("error", err.Error()))
		return
	}
	p.publish(p.cfg.FrameTopic(cameraID), payload)
}

func (p *Publisher) publish(topic string, payload []byte) {
	if !p.client.IsConnectionOpen() {
		p.obs.IncCounter("camflow_live_dropped_total", 1)
		return
	}
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			p.obs.IncCounter("camflow_live_dropped_total", 1)
			p.obs.LogDebug("mqtt_publish_failed", ports.F("topic", topic), ports.F("error", err.Error()))
			return
		}
	default:
	}
	p.obs.IncCounter("camflow_live_published_total", 1)
}

var _ ports.LivePublisher = (*Publisher)(nil)
