package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Tick("steer", 3*time.Millisecond)
	m.Tick("steer", 4*time.Millisecond)
	m.Tick("target", time.Millisecond)
	m.FrameDropped()
	m.FrameFailed()
	m.FrameFailed()
	m.CommandSent("dl")
	m.TrackingLost("drone")
	m.SetControlState(1)

	var tests = []struct {
		name   string
		c      prometheus.Collector
		expect float64
	}{
		{"ticks steer", m.ticksTotal.WithLabelValues("steer"), 2},
		{"ticks target", m.ticksTotal.WithLabelValues("target"), 1},
		{"dropped", m.framesDropped, 1},
		{"failed", m.framesFailed, 2},
		{"sent dl", m.commandsSent.WithLabelValues("dl"), 1},
		{"lost drone", m.trackingLost.WithLabelValues("drone"), 1},
		{"state", m.controlState, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.expect {
				t.Errorf("got %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.Tick("steer", time.Millisecond)
	m.FrameDropped()
	m.FrameFailed()
	m.CommandSent("hb")
	m.TrackingLost("target")
	m.SetControlState(2)

	rec := httptest.NewRecorder()
	m.WrapHandler("/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("got %d", rec.Code)
	}
}

func TestMetrics_WrapHandlerAndExposition(t *testing.T) {
	m := NewMetrics(nil)

	h := m.WrapHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/health", "404")); got != 1 {
		t.Errorf("requests: got %v, want 1", got)
	}

	m.CommandSent("ss")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `dronetrack_commands_sent_total{command="ss"} 1`) {
		t.Errorf("exposition missing command counter:\n%s", body)
	}
}
