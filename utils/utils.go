package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownAddress = errors.New("unknown channel address")

// ChannelAddress resolves a channel name given on the command line into a network and address.
//
//	none               dry run, nothing leaves the process
//	tcp:host:port      TCP socket
//	unix:/path         unix domain socket
//	fifo:/path         existing named pipe
//	ws://host/path     websocket (wss:// too)
//	drone              bare name, unix socket in the temp dir
func ChannelAddress(name string) (network, addr string, err error) {
	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return "", "", errors.Wrap(ErrUnknownAddress, "empty name")
	case name == "none":
		return "none", "", nil
	case strings.HasPrefix(name, "ws://"), strings.HasPrefix(name, "wss://"):
		return "ws", name, nil
	}

	if scheme, rest, ok := strings.Cut(name, ":"); ok {
		if rest == "" {
			return "", "", errors.Wrapf(ErrUnknownAddress, "%q has no address", name)
		}
		switch scheme {
		case "tcp", "unix", "fifo":
			return scheme, rest, nil
		}
		return "", "", errors.Wrapf(ErrUnknownAddress, "scheme %q", scheme)
	}

	if strings.ContainsAny(name, `/\`) {
		return "", "", errors.Wrapf(ErrUnknownAddress, "%q: paths need a unix: or fifo: prefix", name)
	}
	return "unix", filepath.Join(os.TempDir(), name+".sock"), nil
}
