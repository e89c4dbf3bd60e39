package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/service"
	"github.com/septivank/sensor-monitor-worker/tools/timeparser"
)

// History limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Service is the part of the reconciler the HTTP surface calls.
type Service interface {
	Reconcile(ctx context.Context) (model.LatestView, error)
	FetchFromDevice(ctx context.Context) ([]model.Reading, error)
	LatestReadings(ctx context.Context) (model.LatestView, error)
	History(ctx context.Context, sensorType string, limit int) ([]model.Reading, error)
	Range(ctx context.Context, sensorType string, start, end int64) ([]model.Reading, error)
	Sensors(ctx context.Context) ([]service.SensorInfo, error)
	Threshold(ctx context.Context, sensorType string) (model.Threshold, error)
	Thresholds(ctx context.Context) ([]model.Threshold, error)
	SetThreshold(ctx context.Context, sensorType string, maxValue float64) (model.Threshold, error)
	SetThresholdRange(ctx context.Context, threshold model.Threshold) error
	Prune(ctx context.Context, days int) (int64, error)
	DeviceURL() string
	SetDeviceURL(url string) error
}

// Handler serves the HTTP routes.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

type contextKey struct{}

func withLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

func (h *Handler) loggerFor(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value(contextKey{}).(*zap.Logger); ok {
		return logger
	}
	return h.logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type thresholdRequest struct {
	MaxValue *float64 `json:"max_value"`
	MinValue *float64 `json:"min_value"`
}

type deviceURLBody struct {
	URL string `json:"url"`
}

type pruneResponse struct {
	Deleted int64 `json:"deleted"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case apperr.IsConfig(err):
		return http.StatusBadRequest
	case apperr.IsDecode(err):
		return http.StatusUnprocessableEntity
	case apperr.IsTransport(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := h.loggerFor(r)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Config("body", "invalid JSON: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, apperr.Config(key, "is required")
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Config(key, "must be an integer, got %q", raw)
	}
	return value, nil
}

// queryTimestamp accepts milliseconds, RFC3339 or a plain date.
func queryTimestamp(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, apperr.Config(key, "is required")
	}
	value, err := timeparser.ParseTimestamp(raw)
	if err != nil {
		return 0, apperr.Config(key, "%v", err)
	}
	return value, nil
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) latestReadings(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.LatestReadings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, apperr.Config("limit", "must be a positive integer, got %q", raw))
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	readings, err := h.svc.History(r.Context(), mux.Vars(r)["sensorType"], limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) readingsRange(w http.ResponseWriter, r *http.Request) {
	start, err := queryTimestamp(r, "start")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := queryTimestamp(r, "end")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	readings, err := h.svc.Range(r.Context(), mux.Vars(r)["sensorType"], start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) prune(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "older_than_days")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	deleted, err := h.svc.Prune(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pruneResponse{Deleted: deleted})
}

func (h *Handler) sensors(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Sensors(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.svc.Thresholds(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thresholds)
}

func (h *Handler) threshold(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.svc.Threshold(r.Context(), mux.Vars(r)["sensorType"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threshold)
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.MaxValue == nil {
		h.writeError(w, r, apperr.Config("max_value", "is required"))
		return
	}

	sensorType := mux.Vars(r)["sensorType"]
	if req.MinValue == nil {
		threshold, err := h.svc.SetThreshold(r.Context(), sensorType, *req.MaxValue)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, threshold)
		return
	}

	threshold := model.Threshold{SensorType: sensorType, MinValue: *req.MinValue, MaxValue: *req.MaxValue}
	if err := h.svc.SetThresholdRange(r.Context(), threshold); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threshold)
}

func (h *Handler) deviceURL(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deviceURLBody{URL: h.svc.DeviceURL()})
}

func (h *Handler) setDeviceURL(w http.ResponseWriter, r *http.Request) {
	var req deviceURLBody
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.SetDeviceURL(req.URL); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceURLBody{URL: h.svc.DeviceURL()})
}

func (h *Handler) fetchDevice(w http.ResponseWriter, r *http.Request) {
	readings, err := h.svc.FetchFromDevice(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}
