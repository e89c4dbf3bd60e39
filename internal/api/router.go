// Package api exposes the reconciler over HTTP.
package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/logging"
	"github.com/septivank/sensor-monitor-worker/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// NewRouter registers every route on a gorilla router, wrapped with panic
// recovery, CORS and request-id logging.
func NewRouter(svc Service, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger}
	r := mux.NewRouter()

	route := func(path, name string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, m.WrapHandler(name, fn)).Methods(methods...)
	}

	route("/health", "health", h.health, http.MethodGet)
	route("/readings/latest", "readings_latest", h.latestReadings, http.MethodGet)
	route("/readings/refresh", "readings_refresh", h.refresh, http.MethodPost)
	route("/readings/{sensorType}/history", "readings_history", h.history, http.MethodGet)
	route("/readings/{sensorType}/range", "readings_range", h.readingsRange, http.MethodGet)
	route("/readings", "readings_prune", h.prune, http.MethodDelete)
	route("/sensors", "sensors", h.sensors, http.MethodGet)
	route("/thresholds", "thresholds", h.thresholds, http.MethodGet)
	route("/thresholds/{sensorType}", "threshold_get", h.threshold, http.MethodGet)
	route("/thresholds/{sensorType}", "threshold_put", h.setThreshold, http.MethodPut)
	route("/device/url", "device_url_get", h.deviceURL, http.MethodGet)
	route("/device/url", "device_url_put", h.setDeviceURL, http.MethodPut)
	route("/device/fetch", "device_fetch", h.fetchDevice, http.MethodPost)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	r.Use(requestLogger(logger))

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(false),
	)(handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
	)(r))
}

// requestLogger tags each request with an id, echoed in the response, and
// logs its completion.
func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			reqLogger := logging.WithRequestID(logger, requestID)
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), reqLogger)))

			reqLogger.Debug("request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
		})
	}
}
