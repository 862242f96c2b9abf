// Package pipeline wires segmentation, tracking and control into a per-frame tick
// and runs that tick against a live frame source and command channel.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/DaniruKun/dronetracker/tracker"
	"gocv.io/x/gocv"
)

// Options configure a Pipeline
type Options struct {
	Segmentation imgproc.Config
	Area         tracker.AreaPolicy
	Control      control.Options
	Smoothing    bool    // Kalman-smooth tracked positions
	FrameRate    float64 // Expected frames per second, used by smoothing
}

// Pipeline owns the per-frame processing state. It is not safe for concurrent ticks.
type Pipeline struct {
	segmenter *imgproc.Segmenter
	area      tracker.AreaPolicy
	engine    *control.Engine
	smoothers map[calibration.Class]*tracker.Smoother
	log       *slog.Logger
}

// New creates a Pipeline. A nil logger uses slog.Default().
func New(opts Options, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}

	p := &Pipeline{
		segmenter: imgproc.NewSegmenter(opts.Segmentation),
		area:      opts.Area,
		engine:    control.NewEngine(opts.Control),
		log:       log,
	}

	if opts.Smoothing {
		rate := opts.FrameRate
		if rate <= 0 {
			rate = 30
		}
		p.smoothers = map[calibration.Class]*tracker.Smoother{
			calibration.Target: tracker.NewSmoother(1 / rate),
			calibration.Drone:  tracker.NewSmoother(1 / rate),
		}
	}

	return p
}

// Engine exposes the control state machine, for shutdown and status
func (p *Pipeline) Engine() *control.Engine {
	return p.engine
}

// Close releases native resources
func (p *Pipeline) Close() error {
	return p.segmenter.Close()
}

// Overlay is what a tick knows about the frame, for drawing and reporting.
// In preview modes Mask holds the selected class's mask and must be closed.
type Overlay struct {
	Mode        calibration.Mode
	Calibration calibration.Calibration
	Target      tracker.Position
	Drone       tracker.Position
	Command     control.CommandPair
	Sent        bool
	State       control.State
	Mask        gocv.Mat
}

// Close frees the preview mask, if any
func (o *Overlay) Close() {
	if o.Mode != calibration.Steer {
		o.Mask.Close()
	}
}

// ProcessTick runs one frame through the pipeline. In Steer mode it returns the command
// pair to send, if any. Preview modes only segment the selected class and never command.
func (p *Pipeline) ProcessTick(frame gocv.Mat, cal calibration.Calibration, mode calibration.Mode) (Overlay, control.CommandPair, bool) {
	ov := Overlay{
		Mode:        mode,
		Calibration: cal,
		Target:      tracker.NotFound,
		Drone:       tracker.NotFound,
	}

	hsv := p.segmenter.ToHSV(frame)
	defer hsv.Close()

	switch mode {
	case calibration.PreviewTarget, calibration.PreviewDrone:
		class := calibration.Target
		if mode == calibration.PreviewDrone {
			class = calibration.Drone
		}
		ov.Mask = p.segmenter.Threshold(hsv, cal.Range(class))
		pos := tracker.Track(imgproc.ExtractBlobs(ov.Mask), p.area)
		if class == calibration.Drone {
			ov.Drone = pos
		} else {
			ov.Target = pos
		}
		ov.State = p.engine.Snapshot().State
		return ov, control.CommandPair{}, false
	}

	ov.Target = p.locate(hsv, cal, calibration.Target)
	ov.Drone = p.locate(hsv, cal, calibration.Drone)

	pair, ok := p.engine.Step(ov.Target, ov.Drone)
	ov.Command, ov.Sent = pair, ok
	ov.State = p.engine.Snapshot().State
	return ov, pair, ok
}

func (p *Pipeline) locate(hsv gocv.Mat, cal calibration.Calibration, class calibration.Class) tracker.Position {
	mask := p.segmenter.Threshold(hsv, cal.Range(class))
	defer mask.Close()

	pos := tracker.Track(imgproc.ExtractBlobs(mask), p.area)

	s, ok := p.smoothers[class]
	if !ok {
		return pos
	}
	smoothed, err := s.Smooth(pos)
	if err != nil {
		p.log.Warn("smoothing_failed", slog.String("class", string(class)), slog.Any("err", err))
		s.Reset()
		return pos
	}
	return smoothed
}

// Draw paints the overlay onto img. Preview modes black out everything outside the mask.
func (o Overlay) Draw(img *gocv.Mat) {
	if o.Mode != calibration.Steer && !o.Mask.Empty() {
		masked := gocv.NewMat()
		img.CopyToWithMask(&masked, o.Mask)
		masked.CopyTo(img)
		masked.Close()
	}

	imgproc.DrawMarkers(img, []imgproc.Marker{
		{Label: string(calibration.Target), Position: o.Target, Colour: o.Calibration.Target.Mid().RGBA()},
		{Label: string(calibration.Drone), Position: o.Drone, Colour: o.Calibration.Drone.Mid().RGBA()},
	})
	imgproc.DrawStatus(img, o.String())
}

func (o Overlay) String() string {
	if o.Mode != calibration.Steer {
		return fmt.Sprintf("preview %s", o.Mode)
	}
	if !o.Sent {
		return o.State.String()
	}
	return fmt.Sprintf("%s %s", o.State, o.Command)
}
