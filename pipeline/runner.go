package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/channel"
	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/metrics"
	"github.com/DaniruKun/dronetracker/telemetry"
	"github.com/DaniruKun/dronetracker/tracker"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrChannelFailed ends a session whose command channel stopped accepting sends
var ErrChannelFailed = errors.New("command channel failed")

// channelError keeps the transport error in the chain while matching ErrChannelFailed
type channelError struct {
	cause error
}

func (e *channelError) Error() string        { return ErrChannelFailed.Error() + ": " + e.cause.Error() }
func (e *channelError) Unwrap() error        { return e.cause }
func (e *channelError) Is(target error) bool { return target == ErrChannelFailed }

// Source availability as reported in Status
const (
	SourceRunning     = "running"
	SourceUnavailable = "sensor not available"
	SourceExhausted   = "exhausted"
)

// FrameSource yields frames. gocv.VideoCapture satisfies it.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// DisplayFunc shows a processed frame. It runs on the goroutine that called Run.
type DisplayFunc func(frame *gocv.Mat, ov Overlay)

// Status is a point-in-time view of a running session
type Status struct {
	Session  string           `json:"session"`
	Source   string           `json:"source"`
	Mode     calibration.Mode `json:"mode"`
	Control  control.Snapshot `json:"control"`
	Target   tracker.Position `json:"target"`
	Drone    tracker.Position `json:"drone"`
	Ticks    uint64           `json:"ticks"`
	Dropped  uint64           `json:"frames_dropped"`
	Failed   uint64           `json:"frames_failed"`
	Sent     uint64           `json:"commands_sent"`
	LastTick time.Time        `json:"last_tick"`
	Error    string           `json:"error,omitempty"`
}

// Option configures a Runner
type Option func(*Runner)

// WithMetrics records session metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithPublisher publishes a telemetry event per tick
func WithPublisher(p telemetry.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithDisplay hands every processed frame to fn before it is released
func WithDisplay(fn DisplayFunc) Option {
	return func(r *Runner) { r.display = fn }
}

// WithMaxReadFailures ends the session after n consecutive failed reads. Zero retries forever.
func WithMaxReadFailures(n int) Option {
	return func(r *Runner) { r.maxReadFailures = n }
}

// WithRetryInterval sets the pause after a failed read
func WithRetryInterval(d time.Duration) Option {
	return func(r *Runner) { r.retryInterval = d }
}

// WithSession overrides the generated session id
func WithSession(id string) Option {
	return func(r *Runner) { r.session = id }
}

// Runner drives one control session: frames in, command pairs out
type Runner struct {
	pipeline  *Pipeline
	source    FrameSource
	channel   channel.Channel
	store     *calibration.Store
	log       *slog.Logger
	metrics   *metrics.Metrics
	publisher telemetry.Publisher
	display   DisplayFunc

	session         string
	maxReadFailures int
	retryInterval   time.Duration
	shutdownTimeout time.Duration

	mu     sync.Mutex
	status Status
	found  map[calibration.Class]bool
}

// NewRunner creates a Runner. The caller keeps ownership of the source;
// the channel is closed when Run returns.
func NewRunner(p *Pipeline, src FrameSource, ch channel.Channel, store *calibration.Store, log *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		pipeline:        p,
		source:          src,
		channel:         ch,
		store:           store,
		publisher:       telemetry.Nop{},
		retryInterval:   100 * time.Millisecond,
		shutdownTimeout: 2 * time.Second,
		found:           map[calibration.Class]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.session == "" {
		r.session = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	r.log = log.With(slog.String("session", r.session))
	r.status = Status{
		Session: r.session,
		Source:  SourceRunning,
		Target:  tracker.NotFound,
		Drone:   tracker.NotFound,
	}
	return r
}

// Session returns the session id
func (r *Runner) Session() string {
	return r.session
}

// Status returns a copy of the session status
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := r.status
	r.mu.Unlock()

	st.Control = r.pipeline.Engine().Snapshot()
	st.Mode = r.store.Snapshot().Mode
	return st
}

// Run processes frames until ctx is cancelled, the source runs dry or the channel fails.
// Unless the channel failed, the shutdown pair is sent exactly once before the channel is closed.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("session_started")

	captureCtx, stopCapture := context.WithCancel(ctx)
	slot := make(chan gocv.Mat, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.capture(captureCtx, slot)
	}()

	err := r.loop(ctx, slot)

	// capture may be stuck in a blocking Read; the shutdown pair must not wait on it
	stopCapture()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(slot)
		for frame := range slot {
			frame.Close()
		}
		close(drained)
	}()

	if err != nil {
		r.pipeline.Engine().Shutdown()
		r.setError(err)
		r.log.Error("session_failed", slog.Any("err", err))
		r.closeAll()
		r.waitCapture(drained)
		return err
	}

	r.shutdown(ctx)
	r.closeAll()
	r.log.Info("session_stopped")
	r.waitCapture(drained)
	return nil
}

// waitCapture gives the capture goroutine a bounded chance to exit
func (r *Runner) waitCapture(drained <-chan struct{}) {
	select {
	case <-drained:
	case <-time.After(r.shutdownTimeout):
		r.log.Warn("capture_still_blocked")
	}
}

// loop returns nil when the session should shut down normally
func (r *Runner) loop(ctx context.Context, slot <-chan gocv.Mat) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-slot:
			if !ok {
				return nil
			}
			if frame.Empty() {
				// Marker the capture goroutine leaves when the source is done
				frame.Close()
				return nil
			}
			err := r.tick(ctx, frame)
			frame.Close()
			if err != nil {
				return err
			}
		}
	}
}

func (r *Runner) tick(ctx context.Context, frame gocv.Mat) error {
	start := time.Now()
	snap := r.store.Snapshot()

	ov, pair, send := r.pipeline.ProcessTick(frame, snap.Calibration, snap.Mode)
	defer ov.Close()
	r.metrics.Tick(snap.Mode.String(), time.Since(start))

	if snap.Mode == calibration.Steer {
		r.transition(calibration.Target, ov.Target)
		r.transition(calibration.Drone, ov.Drone)
	}

	if send {
		if err := r.channel.Send(ctx, pair); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &channelError{cause: err}
		}
		r.metrics.CommandSent(pair.String())
		r.log.Debug("command_sent", slog.String("command", pair.String()))
	}
	r.metrics.SetControlState(float64(ov.State))

	r.mu.Lock()
	r.status.Ticks++
	if send {
		r.status.Sent++
	}
	r.status.Target, r.status.Drone = ov.Target, ov.Drone
	r.status.LastTick = start
	seq := r.status.Ticks
	r.mu.Unlock()

	if r.display != nil {
		r.display(&frame, ov)
	}

	ev := telemetry.Event{
		Session: r.session,
		Seq:     seq,
		Time:    start,
		Mode:    snap.Mode.String(),
		Target:  ov.Target,
		Drone:   ov.Drone,
		State:   ov.State,
	}
	if send {
		ev.Command = pair
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.log.Debug("telemetry_publish_failed", slog.Any("err", err))
	}
	return nil
}

// transition logs found/lost changes once rather than every tick
func (r *Runner) transition(class calibration.Class, pos tracker.Position) {
	was, seen := r.found[class]
	r.found[class] = pos.Found
	if seen && was == pos.Found {
		if !pos.Found {
			r.log.Debug("tracking_lost", slog.String("class", string(class)))
		}
		return
	}

	if pos.Found {
		r.log.Info("tracking_found", slog.String("class", string(class)),
			slog.Float64("x", pos.X), slog.Float64("y", pos.Y))
		return
	}
	if seen {
		r.metrics.TrackingLost(string(class))
		r.log.Info("tracking_lost", slog.String("class", string(class)))
	}
}

// capture reads frames into slot. A newer frame replaces one still waiting in the slot.
func (r *Runner) capture(ctx context.Context, slot chan gocv.Mat) {
	failures := 0
	for ctx.Err() == nil {
		frame := gocv.NewMat()
		if !r.source.Read(&frame) || frame.Empty() {
			frame.Close()
			failures++
			r.readFailed(failures)

			if r.maxReadFailures > 0 && failures >= r.maxReadFailures {
				r.setSource(SourceExhausted)
				r.log.Info("source_exhausted", slog.Int("failures", failures))
				r.offer(slot, gocv.NewMat())
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryInterval):
			}
			continue
		}

		if failures > 0 {
			r.setSource(SourceRunning)
			r.log.Info("source_status", slog.String("status", SourceRunning))
			failures = 0
		}
		r.offer(slot, frame)
	}
}

func (r *Runner) readFailed(failures int) {
	r.metrics.FrameFailed()
	r.mu.Lock()
	r.status.Failed++
	r.mu.Unlock()

	if failures == 1 {
		r.setSource(SourceUnavailable)
		r.log.Warn("source_status", slog.String("status", SourceUnavailable))
	}
}

// offer puts frame in the slot, dropping the frame already there. capture is the only sender.
func (r *Runner) offer(slot chan gocv.Mat, frame gocv.Mat) {
	select {
	case slot <- frame:
		return
	default:
	}

	select {
	case old := <-slot:
		old.Close()
		r.metrics.FrameDropped()
		r.mu.Lock()
		r.status.Dropped++
		r.mu.Unlock()
	default:
	}

	select {
	case slot <- frame:
	default:
		frame.Close()
	}
}

func (r *Runner) shutdown(ctx context.Context) {
	pair, ok := r.pipeline.Engine().Shutdown()
	if !ok {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
	defer cancel()

	if err := r.channel.Send(sctx, pair); err != nil {
		r.log.Error("shutdown_send_failed", slog.Any("err", err))
		r.setError(errors.Wrap(err, "send shutdown"))
		return
	}
	r.metrics.CommandSent(pair.String())
	r.metrics.SetControlState(float64(control.Stopped))
	r.mu.Lock()
	r.status.Sent++
	r.mu.Unlock()
	r.log.Info("shutdown_sent")
}

func (r *Runner) closeAll() {
	if err := r.channel.Close(); err != nil {
		r.log.Warn("channel_close_failed", slog.Any("err", err))
	}
	if err := r.publisher.Close(); err != nil {
		r.log.Warn("publisher_close_failed", slog.Any("err", err))
	}
}

func (r *Runner) setSource(s string) {
	r.mu.Lock()
	r.status.Source = s
	r.mu.Unlock()
}

func (r *Runner) setError(err error) {
	r.mu.Lock()
	r.status.Error = err.Error()
	r.mu.Unlock()
}
