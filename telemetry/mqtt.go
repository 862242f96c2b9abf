package telemetry

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const publishTimeout = 500 * time.Millisecond

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends events at QoS 0 and waits a bounded time for each publish
type MQTTPublisher struct {
	client mqttClient
	topic  string
	log    *slog.Logger
}

// NewMQTTPublisher connects to the broker
func NewMQTTPublisher(broker, topic, clientID string, log *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", broker)
	}

	log.Info("mqtt_publisher_connected", slog.String("broker", broker), slog.String("topic", topic))
	return newMQTTPublisher(c, topic, log), nil
}

func newMQTTPublisher(c mqttClient, topic string, log *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: c,
		topic:  topic,
		log:    log.With(slog.String("component", "mqtt_publisher")),
	}
}

// Publish sends one event
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	token := p.client.Publish(p.topic, 0, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		p.log.Warn("mqtt_publish_timeout", slog.Uint64("seq", ev.Seq))
		return errors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		p.log.Warn("mqtt_publish_err", slog.Uint64("seq", ev.Seq), slog.Any("err", err))
		return errors.Wrap(err, "mqtt publish")
	}
	return nil
}

// Close disconnects, giving in-flight messages a moment to leave
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
