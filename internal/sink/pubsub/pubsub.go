package pubsub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gofindmy/internal/config"
	"gitlab.com/d21d3q/gofindmy/internal/sink"
)

const source = "gofindmy"

// Callback is the message body published for every decoded advertisement.
type Callback struct {
	DeviceID  string         `json:"deviceId"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	GatewayID string         `json:"gateway_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	BackendID int64          `json:"backend_id,omitempty"`
}

// publisher is the part of *pubsub.Publisher that Store needs.
type publisher interface {
	publish(ctx context.Context, msg *pubsub.Message) (string, error)
	resume(orderingKey string)
	stop()
}

type topicPublisher struct {
	pub *pubsub.Publisher
}

func (t topicPublisher) publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return t.pub.Publish(ctx, msg).Get(ctx)
}

func (t topicPublisher) resume(orderingKey string) { t.pub.ResumePublish(orderingKey) }

func (t topicPublisher) stop() { t.pub.Stop() }

// Publisher forwards decoded advertisements to a Pub/Sub topic.
type Publisher struct {
	client   *pubsub.Client
	pub      publisher
	topic    string
	ordering bool
	now      func() time.Time
}

var _ sink.Sink = (*Publisher)(nil)

// Open creates the client and publisher for cfg.Topic.
func Open(ctx context.Context, cfg config.PubSubConfig) (*Publisher, error) {
	cl, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "pubsub.NewClient")
	}
	pub := cl.Publisher(cfg.Topic)
	pub.PublishSettings.DelayThreshold = 50 * time.Millisecond
	pub.PublishSettings.Timeout = 10 * time.Second
	pub.EnableMessageOrdering = cfg.Ordering

	logrus.WithFields(logrus.Fields{
		"topic":    cfg.Topic,
		"ordering": cfg.Ordering,
	}).Info("pub/sub publisher initialized")
	return &Publisher{client: cl, pub: topicPublisher{pub: pub}, topic: cfg.Topic, ordering: cfg.Ordering, now: time.Now}, nil
}

func (p *Publisher) Name() string { return "pubsub" }

// BestEffort marks callbacks as secondary to storage.
func (p *Publisher) BestEffort() bool { return true }

// Store publishes the event and waits for the server id. With ordering on, a
// failed publish pauses the device's ordering key; it is resumed here so the
// next advertisement from that device can be published.
func (p *Publisher) Store(ctx context.Context, evt sink.Event) error {
	msg, err := buildMessage(evt, p.ordering, p.now)
	if err != nil {
		return err
	}
	id, err := p.pub.publish(ctx, msg)
	if err != nil {
		if p.ordering && msg.OrderingKey != "" {
			p.pub.resume(msg.OrderingKey)
		}
		return errors.Wrap(err, "publish")
	}
	logrus.WithFields(logrus.Fields{
		"topic": p.topic,
		"id":    id,
		"bytes": len(msg.Data),
	}).Debug("callback published")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.pub.stop()
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func buildMessage(evt sink.Event, ordering bool, now func() time.Time) (*pubsub.Message, error) {
	cb := Callback{
		DeviceID:  strings.ToUpper(evt.DeviceMAC),
		Type:      callbackType(evt),
		Timestamp: evt.Timestamp,
		GatewayID: strings.ToUpper(evt.GatewayMAC),
		Data: map[string]any{
			"parsed_json": evt.Fields,
			"raw_data":    evt.RawHex,
		},
		BackendID: evt.MessageID,
	}
	if cb.Timestamp == 0 {
		cb.Timestamp = now().UnixMilli()
	}
	if evt.RSSI != nil {
		cb.Data["rssi"] = *evt.RSSI
	}
	b, err := json.Marshal(cb)
	if err != nil {
		return nil, errors.Wrap(err, "marshal callback")
	}
	msg := &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"source":     source,
			"type":       cb.Type,
			"deviceId":   cb.DeviceID,
			"gateway_id": cb.GatewayID,
		},
	}
	if ordering {
		msg.OrderingKey = cb.DeviceID
	}
	return msg, nil
}

// callbackType is driver/battery, e.g. "offinding/critical", so subscribers
// can filter low-battery trackers on attributes alone.
func callbackType(evt sink.Event) string {
	if level, ok := evt.Fields["battery_level"].(string); ok && level != "" {
		return evt.Driver + "/" + strings.ToLower(level)
	}
	return evt.Driver
}
