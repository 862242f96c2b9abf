package channel

import (
	"context"
	"sync"

	"github.com/DaniruKun/dronetracker/control"
)

// Recorder keeps every pair it is sent. It backs dry runs and tests.
type Recorder struct {
	mu     sync.Mutex
	pairs  []control.CommandPair
	closed bool

	// FailAfter makes every send after the first FailAfter sends return Err. Zero disables it.
	FailAfter int
	Err       error
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the pair
func (r *Recorder) Send(ctx context.Context, pair control.CommandPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.Err != nil && len(r.pairs) >= r.FailAfter {
		return r.Err
	}
	r.pairs = append(r.pairs, pair)
	return nil
}

// Close marks the recorder closed
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Pairs returns a copy of everything sent so far
func (r *Recorder) Pairs() []control.CommandPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.CommandPair(nil), r.pairs...)
}

// Bytes returns the recorded pairs as they would appear on the wire
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]byte, 0, 2*len(r.pairs))
	for _, p := range r.pairs {
		buf = append(buf, p.Bytes()...)
	}
	return buf
}
