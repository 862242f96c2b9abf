// Package telemetry publishes one event per processed frame to an external bus.
// Publishing is best effort: failures are logged and never stop the control loop.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/tracker"
)

// Event describes one tick of a control session
type Event struct {
	Session string              `json:"session"`
	Seq     uint64              `json:"seq"`
	Time    time.Time           `json:"time"`
	Mode    string              `json:"mode"`
	Target  tracker.Position    `json:"target"`
	Drone   tracker.Position    `json:"drone"`
	Command control.CommandPair `json:"command"`
	State   control.State       `json:"state"`
}

// Publisher sends events somewhere
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Multi fans an event out to several publishers. The first error is returned
// after every publisher has been tried.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
