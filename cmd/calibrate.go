package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/DaniruKun/dronetracker/pipeline"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Tune the target and drone colour ranges with trackbars",
	Long: `Opens a preview window and one trackbar window per colour class. Press t or d to
preview the target or drone mask, s to see both markers, q or Esc to quit.
The final ranges are printed as environment variables.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		mode, _ := calibration.ParseMode(cfg.Mode)
		if mode == calibration.Steer {
			mode = calibration.PreviewTarget
		}
		store := calibration.NewStore(cfg.Calibration(), mode)

		src, err := openSource(cfg)
		if err != nil {
			return err
		}
		defer src.Close()

		p := pipeline.New(pipelineOptions(cfg), log)
		defer p.Close()

		preview := gocv.NewWindow(windowName)
		defer preview.Close()

		initial := store.Snapshot().Calibration
		bars := map[calibration.Class]*rangeBars{
			calibration.Target: newRangeBars(string(calibration.Target), initial.Target),
			calibration.Drone:  newRangeBars(string(calibration.Drone), initial.Drone),
		}
		for _, b := range bars {
			defer b.window.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		frame := gocv.NewMat()
		defer frame.Close()

		for ctx.Err() == nil {
			if ok := src.Read(&frame); !ok || frame.Empty() {
				log.Warn("source_status", slog.String("status", pipeline.SourceUnavailable))
				if preview.WaitKey(100) == 'q' {
					break
				}
				continue
			}

			for class, b := range bars {
				store.SetRange(class, b.Range())
			}

			snap := store.Snapshot()
			ov, _, _ := p.ProcessTick(frame, snap.Calibration, snap.Mode)
			ov.Draw(&frame)
			ov.Close()

			preview.IMShow(frame)
			handleKey(preview.WaitKey(1), store, stop)
		}

		final := store.Snapshot().Calibration
		fmt.Printf("DRONETRACK_TARGET_HSV=%s\n", formatRange(final.Target))
		fmt.Printf("DRONETRACK_DRONE_HSV=%s\n", formatRange(final.Drone))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

// rangeBars is a window of six trackbars editing one HSVRange
type rangeBars struct {
	window *gocv.Window
	bars   [6]*gocv.Trackbar
}

func newRangeBars(name string, initial imgproc.HSVRange) *rangeBars {
	w := gocv.NewWindow(name)
	b := &rangeBars{window: w}

	labels := [6]string{"hue min", "hue max", "sat min", "sat max", "val min", "val max"}
	values := rangeValues(initial)
	for i, label := range labels {
		b.bars[i] = w.CreateTrackbar(label, 255)
		b.bars[i].SetPos(values[i])
	}
	return b
}

// Range reads the current slider positions
func (b *rangeBars) Range() imgproc.HSVRange {
	var v [6]int
	for i, bar := range b.bars {
		v[i] = bar.GetPos()
	}
	return imgproc.HSVRange{
		HueMin: v[0], HueMax: v[1],
		SatMin: v[2], SatMax: v[3],
		ValMin: v[4], ValMax: v[5],
	}
}

func rangeValues(r imgproc.HSVRange) [6]int {
	return [6]int{r.HueMin, r.HueMax, r.SatMin, r.SatMax, r.ValMin, r.ValMax}
}

func formatRange(r imgproc.HSVRange) string {
	v := rangeValues(r)
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v[0], v[1], v[2], v[3], v[4], v[5])
}
