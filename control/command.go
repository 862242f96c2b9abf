// Package control turns tracked positions into discrete two-axis steering commands.
package control

import "github.com/pkg/errors"

// Vertical is the first command symbol
type Vertical byte

// Lateral is the second command symbol
type Lateral byte

const (
	Ascend  Vertical = 'u'
	Descend Vertical = 'd'
	Hold    Vertical = 'h'

	Left   Lateral = 'l'
	Right  Lateral = 'r'
	Center Lateral = 'b'

	// Shutdown symbols are reserved and only ever sent as a pair
	VerticalShutdown Vertical = 's'
	LateralShutdown  Lateral  = 's'
)

// CommandPair is one outbound instruction: one symbol per axis
type CommandPair struct {
	Vertical Vertical
	Lateral  Lateral
}

var (
	// StartupPair triggers the initial stabilized hover
	StartupPair = CommandPair{Vertical: Hold, Lateral: Center}
	// NeutralPair holds position on both axes
	NeutralPair = CommandPair{Vertical: Hold, Lateral: Center}
	// ShutdownPair asks the vehicle process to shut down completely
	ShutdownPair = CommandPair{Vertical: VerticalShutdown, Lateral: LateralShutdown}
)

// Bytes encodes the pair as exactly two single-byte symbols
func (c CommandPair) Bytes() []byte {
	return []byte{byte(c.Vertical), byte(c.Lateral)}
}

// String returns the two symbols as text, e.g. "dl"
func (c CommandPair) String() string {
	return string(c.Bytes())
}

// IsShutdown reports whether this is the reserved shutdown pair
func (c CommandPair) IsShutdown() bool {
	return c == ShutdownPair
}

// Valid reports whether both symbols belong to the alphabet. Shutdown symbols are only valid together.
func (c CommandPair) Valid() bool {
	if c.IsShutdown() {
		return true
	}
	switch c.Vertical {
	case Ascend, Descend, Hold:
	default:
		return false
	}
	switch c.Lateral {
	case Left, Right, Center:
	default:
		return false
	}
	return true
}

// MarshalText implements encoding.TextMarshaler so pairs show up as "dl" in JSON
func (c CommandPair) MarshalText() ([]byte, error) {
	if c == (CommandPair{}) {
		return []byte{}, nil
	}
	return c.Bytes(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *CommandPair) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = CommandPair{}
		return nil
	}
	pair, err := ParseCommandPair(text)
	if err != nil {
		return err
	}
	*c = pair
	return nil
}

// ParseCommandPair decodes a fixed-width two-byte command
func ParseCommandPair(b []byte) (CommandPair, error) {
	if len(b) != 2 {
		return CommandPair{}, errors.Errorf("command must be 2 bytes, got %d", len(b))
	}
	pair := CommandPair{Vertical: Vertical(b[0]), Lateral: Lateral(b[1])}
	if !pair.Valid() {
		return CommandPair{}, errors.Errorf("unknown command %q", string(b))
	}
	return pair, nil
}
