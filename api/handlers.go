package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/DaniruKun/dronetracker/pipeline"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// StatusSource reports on a running session
type StatusSource interface {
	Status() pipeline.Status
}

// Handlers serve the control API. Status may be nil when no session runs.
type Handlers struct {
	Store  *calibration.Store
	Status StatusSource
	Log    *slog.Logger
}

type modeBody struct {
	Mode calibration.Mode `json:"mode"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	if h.Status == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no session running"))
		return
	}
	writeJSON(w, http.StatusOK, h.Status.Status())
}

func (h *Handlers) getCalibration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Snapshot().Calibration)
}

func (h *Handlers) putCalibration(w http.ResponseWriter, r *http.Request) {
	class, err := calibration.ParseClass(mux.Vars(r)["class"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var rng imgproc.HSVRange
	if err := decode(w, r, &rng); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if rng.Clamp() != rng {
		writeError(w, http.StatusBadRequest, errors.New("bounds must lie in 0-255"))
		return
	}

	if err := h.Store.SetRange(class, rng); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.Log.Info("calibration_updated", slog.String("class", string(class)), slog.Any("range", rng),
		slog.Bool("degenerate", rng.Degenerate()))
	writeJSON(w, http.StatusOK, h.Store.Snapshot().Calibration)
}

func (h *Handlers) getMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modeBody{Mode: h.Store.Snapshot().Mode})
}

func (h *Handlers) putMode(w http.ResponseWriter, r *http.Request) {
	var body modeBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Store.SetMode(body.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.Log.Info("mode_changed", slog.String("mode", body.Mode.String()))
	writeJSON(w, http.StatusOK, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
