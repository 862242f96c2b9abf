package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/tracker"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testEvent() Event {
	return Event{
		Session: "5f1c",
		Seq:     7,
		Time:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Mode:    "steer",
		Target:  tracker.Position{Found: true, X: 100, Y: 100},
		Drone:   tracker.Position{Found: true, X: 90, Y: 80},
		Command: control.CommandPair{Vertical: control.Descend, Lateral: control.Left},
		State:   control.Steering,
	}
}

func TestEvent_JSON(t *testing.T) {
	data, err := encode(testEvent())
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["command"] != "dl" || got["state"] != "steering" || got["session"] != "5f1c" {
		t.Errorf("unexpected encoding: %s", data)
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	topics   []string
	payloads [][]byte
	token    mqtt.Token
	quiesced bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func (c *fakeMQTT) Disconnect(uint) { c.quiesced = true }

func TestMQTTPublisher(t *testing.T) {
	c := &fakeMQTT{token: newFakeToken(nil, true)}
	p := newMQTTPublisher(c, "drone/telemetry", discard)

	if err := p.Publish(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if len(c.topics) != 1 || c.topics[0] != "drone/telemetry" {
		t.Fatalf("topics: %v", c.topics)
	}

	var ev Event
	if err := json.Unmarshal(c.payloads[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Seq != 7 || ev.Command.String() != "dl" {
		t.Errorf("got %+v", ev)
	}

	p.Close()
	if !c.quiesced {
		t.Error("expected disconnect")
	}
}

func TestMQTTPublisher_Errors(t *testing.T) {
	boom := errors.New("broker gone")
	c := &fakeMQTT{token: newFakeToken(boom, true)}
	p := newMQTTPublisher(c, "t", discard)

	if err := p.Publish(context.Background(), testEvent()); errors.Cause(err) != boom {
		t.Errorf("expected broker error, got %v", err)
	}

	c.token = newFakeToken(nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, testEvent()); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type fakeKafka struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeKafka) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafka) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeKafka{}
	p := newKafkaPublisher(w, discard)

	if err := p.Publish(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("got %d messages", len(w.messages))
	}
	if string(w.messages[0].Key) != "5f1c" {
		t.Errorf("key: got %q", w.messages[0].Key)
	}

	w.err = errors.New("leader not available")
	if err := p.Publish(context.Background(), testEvent()); errors.Cause(err) != w.err {
		t.Errorf("expected writer error, got %v", err)
	}

	p.Close()
	if !w.closed {
		t.Error("expected writer closed")
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, " ", discard); err == nil {
		t.Error("expected error for empty topic")
	}
	if _, err := NewKafkaPublisher(nil, "drone", discard); err == nil {
		t.Error("expected error without brokers")
	}
}

func TestMulti(t *testing.T) {
	good := &fakeKafka{}
	bad := &fakeKafka{err: errors.New("down")}
	m := Multi{newKafkaPublisher(bad, discard), newKafkaPublisher(good, discard), Nop{}}

	if err := m.Publish(context.Background(), testEvent()); err == nil {
		t.Error("expected the first error")
	}
	if len(good.messages) != 1 {
		t.Error("a failing publisher must not stop the others")
	}
	m.Close()
	if !good.closed || !bad.closed {
		t.Error("expected every publisher closed")
	}
}
