// Package mqtt connects the controller to an MQTT broker for remote
// control and the live read path.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/CamFlow/internal/ports"
)

type Config struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	TopicPrefix   string `yaml:"topic_prefix"`
	QoS           byte   `yaml:"qos"`
	PublishFrames bool   `yaml:"publish_frames"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "camflow"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "camflow"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.QoS > 2 {
		c.QoS = 1
	}
}

func (c Config) ControlTopic() string { return c.TopicPrefix + "/control" }

func (c Config) StatusTopic() string { return c.TopicPrefix + "/status" }

func (c Config) SensorTopic(sensorID, header string) string {
	return fmt.Sprintf("%s/sensors/%s/%s", c.TopicPrefix, sensorID, header)
}

func (c Config) FrameTopic(cameraID string) string {
	return fmt.Sprintf("%s/frames/%s", c.TopicPrefix, cameraID)
}

// Connect dials the broker with automatic reconnection enabled.
func Connect(cfg Config, obs ports.Observability) (paho.Client, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(paho.Client) {
		obs.LogInfo("mqtt_connected", ports.F("broker", broker), ports.F("client_id", cfg.ClientID))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		obs.IncCounter("camflow_mqtt_disconnects_total", 1)
		obs.LogWarn("mqtt_connection_lost", ports.F("broker", broker), ports.F("error", err.Error()))
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}
