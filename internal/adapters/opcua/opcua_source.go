package opcua

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/CamFlow/internal/domain"
	"github.com/ghalamif/CamFlow/internal/ports"
)

// Config describes an OPC UA server exposing the values of one installed
// sensor (for example a winch or CTD PLC).
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig maps a monitored node to the header of the lines it produces.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Header string `yaml:"header"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "CamFlow"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].Header == "" {
			c.Nodes[i].Header = c.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		if strings.Contains(n.Header, ",") {
			return fmt.Errorf("node %s: header must not contain a comma", n.NodeID)
		}
	}
	return nil
}

// Source renders OPC UA data changes as "<header>,<value>" lines.
type Source struct {
	sensorID string
	cfg      Config
}

func NewSource(sensorID string, cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{sensorID: sensorID, cfg: cfg}, nil
}

func (s *Source) SensorID() string { return s.sensorID }

// Stream connects, subscribes to every configured node and blocks until ctx
// is cancelled or the subscription fails.
func (s *Source) Stream(ctx context.Context, out chan<- domain.RawLine) error {
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("opcua connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: s.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		return fmt.Errorf("opcua subscribe: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sub.Cancel(closeCtx)
	}()

	headers := make(map[uint32]string, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if s.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			return fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		headers[handle] = node.Header
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-notifyCh:
			if !ok {
				return errors.New("opcua notification channel closed")
			}
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				return fmt.Errorf("opcua notification: %w", notif.Error)
			}
			data, ok := notif.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, item := range data.MonitoredItems {
				line, ok := s.render(headers, item)
				if !ok {
					continue
				}
				select {
				case out <- line:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// render turns one data change into a raw line. Values without a textual
// rendering are skipped.
func (s *Source) render(headers map[uint32]string, item *ua.MonitoredItemNotification) (domain.RawLine, bool) {
	header, ok := headers[item.ClientHandle]
	if !ok || item.Value == nil {
		return domain.RawLine{}, false
	}
	val, ok := variantText(item.Value.Value)
	if !ok {
		return domain.RawLine{}, false
	}
	// the receive instant drives freshness, not the server timestamp
	return domain.RawLine{
		SensorID:   s.sensorID,
		Data:       []byte(header + "," + val),
		ReceivedAt: time.Now(),
	}, true
}

func (s *Source) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantText(v *ua.Variant) (string, bool) {
	if v == nil {
		return "", false
	}
	switch val := v.Value().(type) {
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int8:
		return strconv.FormatInt(int64(val), 10), true
	case int16:
		return strconv.FormatInt(int64(val), 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint8:
		return strconv.FormatUint(uint64(val), 10), true
	case uint16:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case string:
		return val, true
	default:
		return "", false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.LineSource = (*Source)(nil)
