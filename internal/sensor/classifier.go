package sensor

import (
	"bytes"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ghalamif/CamFlow/internal/domain"
)

// Channel is the static configuration of one installed sensor.
type Channel struct {
	Name            string
	Type            domain.SensorType
	SyncedHeaders   []string
	AsyncHeaders    []string
	IgnoreHeaders   []string
	AddHeader       string
	LoggingInterval time.Duration
}

type channelRules struct {
	cfg    Channel
	synced map[string]struct{}
	async  map[string]struct{}
	ignore map[string]struct{}
}

var unconfigured = channelRules{}

// Classifier resolves header, kind and normalized payload of raw sensor lines.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	channels    map[string]*channelRules
	defaultType domain.SensorType
}

func NewClassifier(channels []Channel, defaultType domain.SensorType) *Classifier {
	if defaultType == "" {
		defaultType = domain.SensorSynchronous
	}
	c := &Classifier{
		channels:    make(map[string]*channelRules, len(channels)),
		defaultType: defaultType,
	}
	for _, ch := range channels {
		c.channels[ch.Name] = &channelRules{
			cfg:    ch,
			synced: toSet(ch.SyncedHeaders),
			async:  toSet(ch.AsyncHeaders),
			ignore: toSet(ch.IgnoreHeaders),
		}
	}
	return c
}

// LoggingInterval returns the async write interval of a sensor, zero if unthrottled.
func (c *Classifier) LoggingInterval(sensorID string) time.Duration {
	if r, ok := c.channels[sensorID]; ok {
		return r.cfg.LoggingInterval
	}
	return 0
}

// Classify parses one line. Ignored headers are returned with Type
// SensorIgnored and a nil error.
func (c *Classifier) Classify(line domain.RawLine) (domain.Datagram, error) {
	rules, ok := c.channels[line.SensorID]
	if !ok {
		// sensors without configuration fall back to default_type
		rules = &unconfigured
	}

	text, err := normalize(line)
	if err != nil {
		return domain.Datagram{}, err
	}

	var header string
	if rules.cfg.AddHeader != "" {
		header = rules.cfg.AddHeader
		text = header + "," + text
	} else {
		header, _, _ = strings.Cut(text, ",")
		header = strings.TrimSpace(header)
		if header == "" {
			return domain.Datagram{}, &domain.ParseError{SensorID: line.SensorID, Line: text, Msg: "no header"}
		}
	}

	d := domain.Datagram{
		SensorID:   line.SensorID,
		Header:     header,
		Data:       text,
		ReceivedAt: line.ReceivedAt,
		Type:       c.resolve(rules, header),
	}
	return d, nil
}

// ignore_headers wins over synced/async membership, which wins over the
// sensor type, which wins over the system default.
func (c *Classifier) resolve(rules *channelRules, header string) domain.SensorType {
	if _, ok := rules.ignore[header]; ok {
		return domain.SensorIgnored
	}
	if _, ok := rules.synced[header]; ok {
		return domain.SensorSynchronous
	}
	if _, ok := rules.async[header]; ok {
		return domain.SensorAsynchronous
	}
	if rules.cfg.Type != "" {
		return rules.cfg.Type
	}
	return c.defaultType
}

func normalize(line domain.RawLine) (string, error) {
	raw := bytes.TrimSpace(line.Data)
	if len(raw) == 0 {
		return "", &domain.ParseError{SensorID: line.SensorID, Msg: "empty line"}
	}
	if !utf8.Valid(raw) {
		return "", &domain.ParseError{SensorID: line.SensorID, Line: string(raw), Msg: "non-text payload"}
	}
	text := string(raw)
	for _, r := range text {
		if unicode.IsControl(r) && r != '\t' {
			return "", &domain.ParseError{SensorID: line.SensorID, Line: text, Msg: "non-text payload"}
		}
	}
	return text, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}
