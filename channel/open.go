package channel

import (
	"context"

	"github.com/pkg/errors"
)

// Networks understood by Open
const (
	NetworkTCP       = "tcp"
	NetworkUnix      = "unix"
	NetworkFIFO      = "fifo"
	NetworkWebSocket = "ws"
	NetworkNone      = "none"
)

// Open connects to the vehicle process. With listen set, stream networks wait for
// one client instead of dialing out.
func Open(ctx context.Context, network, addr string, listen bool) (Channel, error) {
	switch network {
	case NetworkNone:
		return NewRecorder(), nil
	case NetworkWebSocket:
		return DialWebSocket(ctx, addr)
	case NetworkFIFO:
		return OpenFIFO(ctx, addr)
	case NetworkTCP, NetworkUnix:
		if listen {
			return Accept(ctx, network, addr)
		}
		return Dial(ctx, network, addr)
	}
	return nil, errors.Errorf("unsupported channel network %q", network)
}
