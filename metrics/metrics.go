package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer, which records nothing
type Metrics struct {
	gatherer prometheus.Gatherer

	ticksTotal        *prometheus.CounterVec
	framesDropped     prometheus.Counter
	framesFailed      prometheus.Counter
	commandsSent      *prometheus.CounterVec
	trackingLost      *prometheus.CounterVec
	tickDuration      prometheus.Histogram
	controlState      prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics registers every collector on reg. A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dronetrack_ticks_total",
			Help: "Processed frames by mode.",
		}, []string{"mode"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dronetrack_frames_dropped_total",
			Help: "Frames replaced by a newer frame before processing.",
		}),
		framesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dronetrack_frames_failed_total",
			Help: "Frame acquisitions that failed.",
		}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dronetrack_commands_sent_total",
			Help: "Command pairs written to the channel.",
		}, []string{"command"}),
		trackingLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dronetrack_tracking_lost_total",
			Help: "Transitions from found to lost per colour class.",
		}, []string{"class"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dronetrack_tick_duration_seconds",
			Help:    "Time spent processing one frame.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		controlState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dronetrack_control_state",
			Help: "Control state (0 idle, 1 steering, 2 stopped).",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dronetrack_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dronetrack_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.ticksTotal,
		m.framesDropped,
		m.framesFailed,
		m.commandsSent,
		m.trackingLost,
		m.tickDuration,
		m.controlState,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency for one route
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(mode).Inc()
	m.tickDuration.Observe(duration.Seconds())
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *Metrics) FrameFailed() {
	if m == nil {
		return
	}
	m.framesFailed.Inc()
}

func (m *Metrics) CommandSent(command string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(command).Inc()
}

func (m *Metrics) TrackingLost(class string) {
	if m == nil {
		return
	}
	m.trackingLost.WithLabelValues(class).Inc()
}

func (m *Metrics) SetControlState(state float64) {
	if m == nil {
		return
	}
	m.controlState.Set(state)
}
