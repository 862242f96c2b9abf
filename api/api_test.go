package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/DaniruKun/dronetracker/metrics"
	"github.com/DaniruKun/dronetracker/pipeline"
)

type fakeStatus struct{ st pipeline.Status }

func (f fakeStatus) Status() pipeline.Status { return f.st }

func newServer(t *testing.T, status StatusSource) (*httptest.Server, *calibration.Store) {
	t.Helper()
	store := calibration.NewStore(calibration.Default(), calibration.Steer)
	h := &Handlers{
		Store:  store,
		Status: status,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	srv := httptest.NewServer(NewRouter(h, metrics.NewMetrics(nil)))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newServer(t, nil)
	if resp, _ := do(t, http.MethodGet, srv.URL+"/status", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("without a session: got %d", resp.StatusCode)
	}

	st := pipeline.Status{
		Session: "abc",
		Source:  pipeline.SourceUnavailable,
		Control: control.Snapshot{State: control.Steering, Started: true, Last: control.NeutralPair},
	}
	srv, _ = newServer(t, fakeStatus{st})

	resp, body := do(t, http.MethodGet, srv.URL+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if got["session"] != "abc" || got["source"] != "sensor not available" {
		t.Errorf("got %s", body)
	}
	if ctl := got["control"].(map[string]any); ctl["state"] != "steering" || ctl["last_command"] != "hb" {
		t.Errorf("control: %v", ctl)
	}
}

func TestCalibration(t *testing.T) {
	srv, store := newServer(t, nil)

	red := `{"hue_min":0,"hue_max":10,"sat_min":100,"sat_max":255,"val_min":100,"val_max":255}`
	resp, body := do(t, http.MethodPut, srv.URL+"/calibration/target", red)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d %s", resp.StatusCode, body)
	}

	want := imgproc.HSVRange{HueMin: 0, HueMax: 10, SatMin: 100, SatMax: 255, ValMin: 100, ValMax: 255}
	if got := store.Snapshot().Calibration.Target; got != want {
		t.Errorf("store: got %+v", got)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/calibration", "")
	var cal calibration.Calibration
	if err := json.Unmarshal([]byte(body), &cal); err != nil {
		t.Fatal(err)
	}
	if cal.Target != want || cal.Drone != imgproc.FullRange() {
		t.Errorf("got %+v", cal)
	}

	var tests = []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown class", "/calibration/depth", red, http.StatusNotFound},
		{"bad json", "/calibration/drone", `{"hue_min":`, http.StatusBadRequest},
		{"unknown field", "/calibration/drone", `{"hue":1}`, http.StatusBadRequest},
		{"out of range", "/calibration/drone", `{"hue_max":300}`, http.StatusBadRequest},
		{"degenerate accepted", "/calibration/drone", `{"hue_min":20,"hue_max":10,"sat_max":255,"val_max":255}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPut, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("got %d %s, want %d", resp.StatusCode, body, tt.status)
			}
		})
	}
}

func TestMode(t *testing.T) {
	srv, store := newServer(t, nil)

	_, body := do(t, http.MethodGet, srv.URL+"/mode", "")
	if strings.TrimSpace(body) != `{"mode":"steer"}` {
		t.Errorf("got %s", body)
	}

	resp, _ := do(t, http.MethodPut, srv.URL+"/mode", `{"mode":"drone"}`)
	if resp.StatusCode != http.StatusOK || store.Snapshot().Mode != calibration.PreviewDrone {
		t.Errorf("got %d, mode %s", resp.StatusCode, store.Snapshot().Mode)
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/mode", `{"mode":"orbit"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode: got %d", resp.StatusCode)
	}
	if store.Snapshot().Mode != calibration.PreviewDrone {
		t.Error("a rejected request must not change the mode")
	}
}

func TestMethodsAndMetrics(t *testing.T) {
	srv, _ := newServer(t, nil)

	if resp, _ := do(t, http.MethodPost, srv.URL+"/mode", `{}`); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /mode: got %d", resp.StatusCode)
	}

	do(t, http.MethodGet, srv.URL+"/health", "")
	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `dronetrack_http_requests_total{route="/health",status="200"}`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}
