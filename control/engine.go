package control

import (
	"strings"
	"sync"

	"github.com/DaniruKun/dronetracker/tracker"
	"github.com/pkg/errors"
)

// State of the control session
type State int

const (
	Idle     State = iota // Waiting for both markers before the startup command
	Steering              // Emitting a steering pair every tick
	Stopped               // Shutdown pair sent, nothing more is emitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Steering:
		return "steering"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "steering":
		*s = Steering
	case "stopped":
		*s = Stopped
	default:
		return errors.Errorf("unknown state: %s", text)
	}
	return nil
}

// LostPolicy decides what Steering emits when either marker is missing
type LostPolicy int

const (
	LostNeutral LostPolicy = iota // Emit hold/center so the vehicle hovers
	LostHold                      // Repeat the last pair
	LostSkip                      // Emit nothing this tick
)

func (p LostPolicy) String() string {
	switch p {
	case LostNeutral:
		return "neutral"
	case LostHold:
		return "hold"
	case LostSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseLostPolicy parses "neutral", "hold" or "skip"
func ParseLostPolicy(s string) (LostPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "neutral":
		return LostNeutral, nil
	case "hold":
		return LostHold, nil
	case "skip":
		return LostSkip, nil
	}
	return LostNeutral, errors.Errorf("unknown lost policy: %s", s)
}

// Options tune the engine beyond the reference control law
type Options struct {
	LostPolicy LostPolicy // Behaviour when a marker is lost while steering
	Dedupe     bool       // Suppress a pair identical to the last one emitted
}

// Decide applies the bang-bang control law to one pair of positions.
// Screen-space Y grows downward; the physical meaning of each symbol belongs to the vehicle.
func Decide(target, drone tracker.Position) CommandPair {
	pair := NeutralPair

	switch {
	case drone.Y < target.Y:
		pair.Vertical = Descend
	case drone.Y > target.Y:
		pair.Vertical = Ascend
	default:
		pair.Vertical = Hold
	}

	switch {
	case drone.X > target.X:
		pair.Lateral = Right
	case drone.X < target.X:
		pair.Lateral = Left
	default:
		pair.Lateral = Center
	}

	return pair
}

// Engine is the control-loop state machine. It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	state   State
	last    CommandPair
	hasLast bool
}

// Snapshot is a copy of the engine state
type Snapshot struct {
	State   State       `json:"state"`
	Started bool        `json:"started"`
	Last    CommandPair `json:"last_command"`
}

// NewEngine creates an engine in the Idle state
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Step consumes one tick of positions and returns the pair to send, if any
func (e *Engine) Step(target, drone tracker.Position) (CommandPair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bothFound := target.Found && drone.Found

	switch e.state {
	case Idle:
		if !bothFound {
			return CommandPair{}, false
		}
		e.state = Steering
		e.record(StartupPair)
		return StartupPair, true

	case Steering:
		var pair CommandPair
		if bothFound {
			pair = Decide(target, drone)
		} else {
			switch e.opts.LostPolicy {
			case LostSkip:
				return CommandPair{}, false
			case LostHold:
				pair = NeutralPair
				if e.hasLast {
					pair = e.last
				}
			default:
				pair = NeutralPair
			}
		}

		if e.opts.Dedupe && e.hasLast && pair == e.last {
			return CommandPair{}, false
		}
		e.record(pair)
		return pair, true
	}

	return CommandPair{}, false
}

// Shutdown moves the engine to Stopped and returns the shutdown pair.
// Only the first call returns true, whatever state the engine was in.
func (e *Engine) Shutdown() (CommandPair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Stopped {
		return CommandPair{}, false
	}
	e.state = Stopped
	e.record(ShutdownPair)
	return ShutdownPair, true
}

// Snapshot returns the current state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		State:   e.state,
		Started: e.state != Idle,
		Last:    e.last,
	}
}

func (e *Engine) record(pair CommandPair) {
	e.last = pair
	e.hasLast = true
}
