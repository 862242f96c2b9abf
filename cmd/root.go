/*
Copyright © 2022 Daniils Petrovs <thedanpetrov@gmail.com>

*/
package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DaniruKun/dronetracker/api"
	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/channel"
	"github.com/DaniruKun/dronetracker/config"
	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/DaniruKun/dronetracker/metrics"
	"github.com/DaniruKun/dronetracker/pipeline"
	"github.com/DaniruKun/dronetracker/telemetry"
	"github.com/DaniruKun/dronetracker/tracker"
	"github.com/DaniruKun/dronetracker/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

const windowName = "Drone Tracker"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dronetracker",
	Short: "Drone Tracker",
	Long: `Tracks a target and a drone by colour in a camera feed and steers the drone
towards the target over a two-symbol command channel.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSession(ctx, stop, cfg, log)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntP("device", "d", 0, "Camera device index")
	flags.StringP("file", "f", "", "Video file to track instead of a camera")
	flags.BoolP("gui", "g", false, "Show GUI with preview")
	flags.String("http", config.Default().HTTPAddr, "Control API address, empty to disable")
	flags.Int("morph-iterations", 0, "Erode/dilate iterations for noise suppression")
	flags.Int("kernel-size", 0, "Structuring element size in pixels")
	flags.Float64("min-area", 0, "Ignore blobs smaller than this (0 = no bound)")
	flags.Float64("max-area", 0, "Ignore blobs larger than this (0 = no bound)")
	flags.String("mode", "", "Initial mode: steer, target or drone")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("target", "", "Target HSV range: hmin,hmax,smin,smax,vmin,vmax")
	flags.String("drone", "", "Drone HSV range: hmin,hmax,smin,smax,vmin,vmax")

	rootCmd.Flags().StringP("channel", "c", "", "Command channel: none, tcp:host:port, unix:/path, fifo:/path, ws://... or a bare name")
	rootCmd.Flags().BoolP("listen", "l", false, "Wait for the vehicle process to connect to the channel")
	rootCmd.Flags().String("lost-policy", "", "When a marker is lost while steering: neutral, hold or skip")
	rootCmd.Flags().Bool("dedupe", false, "Do not resend a pair identical to the previous one")
	rootCmd.Flags().Bool("smoothing", false, "Kalman-smooth tracked positions")
	rootCmd.Flags().String("mqtt-broker", "", "Publish telemetry to this MQTT broker")
	rootCmd.Flags().StringSlice("kafka-brokers", nil, "Publish telemetry to these Kafka brokers")
}

// loadConfig layers flags that were set over the environment
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device, _ = flags.GetInt("device")
	}
	if flags.Changed("file") {
		cfg.File, _ = flags.GetString("file")
	}
	if flags.Changed("gui") {
		cfg.ShowGUI, _ = flags.GetBool("gui")
	}
	if flags.Changed("http") {
		cfg.HTTPAddr, _ = flags.GetString("http")
	}
	if flags.Changed("morph-iterations") {
		cfg.MorphIterations, _ = flags.GetInt("morph-iterations")
	}
	if flags.Changed("kernel-size") {
		cfg.KernelSize, _ = flags.GetInt("kernel-size")
	}
	if flags.Changed("min-area") {
		cfg.MinArea, _ = flags.GetFloat64("min-area")
	}
	if flags.Changed("max-area") {
		cfg.MaxArea, _ = flags.GetFloat64("max-area")
	}
	if flags.Changed("mode") {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("channel") {
		cfg.Channel, _ = flags.GetString("channel")
	}
	if flags.Changed("listen") {
		cfg.Listen, _ = flags.GetBool("listen")
	}
	if flags.Changed("lost-policy") {
		cfg.LostPolicy, _ = flags.GetString("lost-policy")
	}
	if flags.Changed("dedupe") {
		cfg.Dedupe, _ = flags.GetBool("dedupe")
	}
	if flags.Changed("smoothing") {
		cfg.Smoothing, _ = flags.GetBool("smoothing")
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTTBroker, _ = flags.GetString("mqtt-broker")
	}
	if flags.Changed("kafka-brokers") {
		cfg.KafkaBrokers, _ = flags.GetStringSlice("kafka-brokers")
	}

	for name, r := range map[string]*imgproc.HSVRange{"target": &cfg.Target, "drone": &cfg.Drone} {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetString(name)
		parsed, err := config.ParseHSVRange(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "--%s", name)
		}
		*r = parsed
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openSource(cfg config.Config) (*gocv.VideoCapture, error) {
	if cfg.File != "" {
		src, err := gocv.VideoCaptureFile(cfg.File)
		return src, errors.Wrapf(err, "open video file %s", cfg.File)
	}
	src, err := gocv.VideoCaptureDevice(cfg.Device)
	return src, errors.Wrapf(err, "open camera %d", cfg.Device)
}

func pipelineOptions(cfg config.Config) pipeline.Options {
	lost, _ := control.ParseLostPolicy(cfg.LostPolicy)
	return pipeline.Options{
		Segmentation: imgproc.Config{MorphIterations: cfg.MorphIterations, KernelSize: cfg.KernelSize},
		Area:         tracker.AreaPolicy{MinArea: cfg.MinArea, MaxArea: cfg.MaxArea},
		Control:      control.Options{LostPolicy: lost, Dedupe: cfg.Dedupe},
		Smoothing:    cfg.Smoothing,
		FrameRate:    cfg.FrameRate,
	}
}

func runSession(ctx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	mode, _ := calibration.ParseMode(cfg.Mode)
	store := calibration.NewStore(cfg.Calibration(), mode)

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	network, addr, err := utils.ChannelAddress(cfg.Channel)
	if err != nil {
		return err
	}
	log.Info("channel_opening", slog.String("network", network), slog.String("addr", addr), slog.Bool("listen", cfg.Listen))
	ch, err := channel.Open(ctx, network, addr, cfg.Listen)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	p := pipeline.New(pipelineOptions(cfg), log)
	defer p.Close()

	opts := []pipeline.Option{pipeline.WithMetrics(m)}
	if cfg.File != "" {
		// End of file ends the session
		opts = append(opts, pipeline.WithMaxReadFailures(1))
	}
	if cfg.ShowGUI {
		window := gocv.NewWindow(windowName)
		defer window.Close()
		opts = append(opts, pipeline.WithDisplay(previewDisplay(window, store, stop)))
	}

	session := uuid.NewString()
	opts = append(opts, pipeline.WithSession(session))
	if pub := newPublisher(cfg, session, log.With(slog.String("session", session))); pub != nil {
		opts = append(opts, pipeline.WithPublisher(pub))
	}
	runner := pipeline.NewRunner(p, src, ch, store, log, opts...)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(&api.Handlers{Store: store, Status: runner, Log: log}, m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("http_listening", slog.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http_server_err", slog.Any("err", err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	return runner.Run(ctx)
}

func newPublisher(cfg config.Config, session string, log *slog.Logger) telemetry.Publisher {
	var pubs telemetry.Multi

	if cfg.MQTTBroker != "" {
		pub, err := telemetry.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTTopic, "dronetracker-"+session, log)
		if err != nil {
			log.Warn("mqtt_publisher_disabled", slog.Any("err", err))
		} else {
			pubs = append(pubs, pub)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := telemetry.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Warn("kafka_publisher_disabled", slog.Any("err", err))
		} else {
			pubs = append(pubs, pub)
		}
	}

	if len(pubs) == 0 {
		return nil
	}
	return pubs
}

// previewDisplay draws the overlay and handles keys: t, d and s switch mode, q or Esc quits
func previewDisplay(window *gocv.Window, store *calibration.Store, stop context.CancelFunc) pipeline.DisplayFunc {
	return func(frame *gocv.Mat, ov pipeline.Overlay) {
		ov.Draw(frame)
		window.IMShow(*frame)
		handleKey(window.WaitKey(1), store, stop)
	}
}

func handleKey(key int, store *calibration.Store, stop context.CancelFunc) {
	switch key {
	case 't':
		store.SetMode(calibration.PreviewTarget)
	case 'd':
		store.SetMode(calibration.PreviewDrone)
	case 's':
		store.SetMode(calibration.Steer)
	case 'q', 27:
		stop()
	}
}
