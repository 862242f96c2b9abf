// Package channel carries command pairs to the vehicle process.
//
// The wire protocol is two single-byte symbols per instruction, vertical axis first,
// with no framing and no acknowledgement.
package channel

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/DaniruKun/dronetracker/control"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by Send after Close
	ErrClosed = errors.New("channel closed")
	// ErrNoClient is returned by Accept when no client connected before the context ended
	ErrNoClient = errors.New("no client connected")
)

// WriteTimeout bounds a single send on transports that support deadlines
var WriteTimeout = 2 * time.Second

// Channel is a sink for command pairs
type Channel interface {
	Send(ctx context.Context, pair control.CommandPair) error
	Close() error
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream writes command pairs to a byte stream: a socket, a pipe or a FIFO.
// Once a write fails the stream is broken and keeps returning that error.
type Stream struct {
	mu     sync.Mutex
	w      io.WriteCloser
	err    error
	closed bool
}

// NewStream wraps a connection
func NewStream(w io.WriteCloser) *Stream {
	return &Stream{w: w}
}

// Send writes exactly two bytes
func (s *Stream) Send(ctx context.Context, pair control.CommandPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}

	if d, ok := s.w.(deadliner); ok && WriteTimeout > 0 {
		deadline := time.Now().Add(WriteTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := d.SetWriteDeadline(deadline); err != nil {
			s.err = errors.Wrapf(err, "send %s", pair)
			return s.err
		}
	}

	buf := pair.Bytes()
	n, err := s.w.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = errors.Wrapf(err, "send %s", pair)
		return s.err
	}
	return nil
}

// Close closes the underlying connection. Calling it twice is harmless.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

// Dial connects to a vehicle process listening on network/addr ("tcp" or "unix")
func Dial(ctx context.Context, network, addr string) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s %s", network, addr)
	}
	return NewStream(conn), nil
}

// Accept listens on network/addr, waits for a single client and stops listening.
// A stale unix socket file at addr is removed first.
func Accept(ctx context.Context, network, addr string) (*Stream, error) {
	if network == "unix" {
		if fi, err := os.Stat(addr); err == nil && fi.Mode()&os.ModeSocket != 0 {
			os.Remove(addr)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, addr)
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case res := <-accepted:
		if res.err != nil {
			return nil, errors.Wrapf(res.err, "accept %s %s", network, addr)
		}
		return NewStream(res.conn), nil
	case <-ctx.Done():
		ln.Close()
		if res := <-accepted; res.conn != nil {
			res.conn.Close()
		}
		return nil, errors.Wrapf(ErrNoClient, "listen %s %s: %v", network, addr, ctx.Err())
	}
}

// OpenFIFO opens an existing named pipe for writing. The open blocks until the
// vehicle process opens the read end, or the context ends.
func OpenFIFO(ctx context.Context, path string) (*Stream, error) {
	type result struct {
		f   *os.File
		err error
	}
	opened := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		opened <- result{f, err}
	}()

	select {
	case res := <-opened:
		if res.err != nil {
			return nil, errors.Wrapf(res.err, "open fifo %s", path)
		}
		return NewStream(res.f), nil
	case <-ctx.Done():
		// The pending open finishes once a reader shows up; close what it returns
		go func() {
			if res := <-opened; res.f != nil {
				res.f.Close()
			}
		}()
		return nil, errors.Wrapf(ErrNoClient, "open fifo %s: %v", path, ctx.Err())
	}
}
