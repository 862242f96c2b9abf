// Package api exposes calibration, mode and session status over HTTP, so a headless
// host can be tuned without the GUI trackbars.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DaniruKun/dronetracker/metrics"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter builds the API with access logging, CORS and panic recovery
func NewRouter(h *Handlers, m *metrics.Metrics) http.Handler {
	if h.Log == nil {
		h.Log = slog.Default()
	}

	r := mux.NewRouter()
	route := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, m.WrapHandler(path, fn)).Methods(methods...)
	}

	route("/health", h.health, http.MethodGet)
	route("/status", h.status, http.MethodGet)
	route("/calibration", h.getCalibration, http.MethodGet)
	route("/calibration/{class}", h.putCalibration, http.MethodPut)
	route("/mode", h.getMode, http.MethodGet)
	route("/mode", h.putMode, http.MethodPut)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))

	return handlers.CustomLoggingHandler(io.Discard, recovery(cors(r)), accessLog(h.Log))
}

// accessLog routes access lines through slog instead of the writer
func accessLog(log *slog.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		log.Debug("http_request",
			slog.String("method", p.Request.Method),
			slog.String("path", p.URL.Path),
			slog.Int("status", p.StatusCode),
			slog.Int("size", p.Size),
			slog.Duration("elapsed", time.Since(p.TimeStamp)))
	}
}
