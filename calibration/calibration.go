// Package calibration holds the live colour calibration and view mode shared between
// whatever edits them (GUI trackbars, HTTP API) and the per-frame pipeline.
package calibration

import (
	"strings"
	"sync"

	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/pkg/errors"
)

var (
	ErrUnknownClass = errors.New("unknown colour class")
	ErrUnknownMode  = errors.New("unknown mode")
)

// Class is one of the two tracked colour markers
type Class string

const (
	Target Class = "target"
	Drone  Class = "drone"
)

// ParseClass accepts "target" or "drone"
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case Target:
		return Target, nil
	case Drone:
		return Drone, nil
	}
	return "", errors.Wrapf(ErrUnknownClass, "%q", s)
}

// Mode selects what the pipeline does with a frame
type Mode int

const (
	Steer         Mode = iota // Both masks, tracking and control
	PreviewTarget             // Target mask only, control suppressed
	PreviewDrone              // Drone mask only, control suppressed
)

func (m Mode) String() string {
	switch m {
	case Steer:
		return "steer"
	case PreviewTarget:
		return "target"
	case PreviewDrone:
		return "drone"
	default:
		return "unknown"
	}
}

// ParseMode accepts "steer", "target" or "drone"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "steer", "":
		return Steer, nil
	case "target":
		return PreviewTarget, nil
	case "drone":
		return PreviewDrone, nil
	}
	return Steer, errors.Wrapf(ErrUnknownMode, "%q", s)
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Calibration is an immutable pair of ranges, one per class
type Calibration struct {
	Target imgproc.HSVRange `json:"target"`
	Drone  imgproc.HSVRange `json:"drone"`
}

// Range returns the range for a class
func (c Calibration) Range(class Class) imgproc.HSVRange {
	if class == Drone {
		return c.Drone
	}
	return c.Target
}

// Default accepts every colour for both classes until someone calibrates
func Default() Calibration {
	return Calibration{
		Target: imgproc.FullRange(),
		Drone:  imgproc.FullRange(),
	}
}

// Snapshot is what one tick reads: the calibration and mode at the same instant
type Snapshot struct {
	Calibration Calibration `json:"calibration"`
	Mode        Mode        `json:"mode"`
}

// Store is written asynchronously by calibration editors and read once per tick
type Store struct {
	mu          sync.RWMutex
	calibration Calibration
	mode        Mode
}

// NewStore creates a store holding the initial values
func NewStore(initial Calibration, mode Mode) *Store {
	return &Store{calibration: initial, mode: mode}
}

// Snapshot returns a consistent copy of the calibration and mode
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Calibration: s.calibration, Mode: s.mode}
}

// SetRange replaces the range of one class
func (s *Store) SetRange(class Class, r imgproc.HSVRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch class {
	case Target:
		s.calibration.Target = r
	case Drone:
		s.calibration.Drone = r
	default:
		return errors.Wrapf(ErrUnknownClass, "%q", string(class))
	}
	return nil
}

// SetMode changes the view mode
func (s *Store) SetMode(m Mode) error {
	if m < Steer || m > PreviewDrone {
		return errors.Wrapf(ErrUnknownMode, "%d", int(m))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}
