package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/metrics"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/service"
)

type fakeService struct {
	mu          sync.Mutex
	view        model.LatestView
	err         error
	historyType string
	limit       int
	rangeArgs   [2]int64
	pruneDays   int
	threshold   model.Threshold
	deviceURL   string
	reconciled  bool
}

func (f *fakeService) Reconcile(context.Context) (model.LatestView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciled = true
	return f.view, f.err
}

func (f *fakeService) FetchFromDevice(context.Context) ([]model.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return model.Expand(model.Snapshot{Timestamp: 1000}), nil
}

func (f *fakeService) LatestReadings(context.Context) (model.LatestView, error) {
	return f.view, f.err
}

func (f *fakeService) History(_ context.Context, sensorType string, limit int) ([]model.Reading, error) {
	f.historyType, f.limit = sensorType, limit
	return []model.Reading{model.NewReading(sensorType, 1, 1000, false)}, f.err
}

func (f *fakeService) Range(_ context.Context, _ string, start, end int64) ([]model.Reading, error) {
	f.rangeArgs = [2]int64{start, end}
	return []model.Reading{}, f.err
}

func (f *fakeService) Sensors(context.Context) ([]service.SensorInfo, error) {
	return []service.SensorInfo{{SensorType: model.Temperature, DisplayName: "Temperature", Unit: "°C", HasReadings: true}}, f.err
}

func (f *fakeService) Threshold(_ context.Context, sensorType string) (model.Threshold, error) {
	if !model.IsKnownSensorType(sensorType) {
		return model.Threshold{}, apperr.Config("sensor_type", "unknown sensor type %q", sensorType)
	}
	return model.DefaultThreshold(sensorType), nil
}

func (f *fakeService) Thresholds(context.Context) ([]model.Threshold, error) {
	return []model.Threshold{model.DefaultThreshold(model.Temperature)}, f.err
}

func (f *fakeService) SetThreshold(_ context.Context, sensorType string, maxValue float64) (model.Threshold, error) {
	f.threshold = model.Threshold{SensorType: sensorType, MinValue: 0, MaxValue: maxValue}
	return f.threshold, f.err
}

func (f *fakeService) SetThresholdRange(_ context.Context, threshold model.Threshold) error {
	f.threshold = threshold
	return f.err
}

func (f *fakeService) Prune(_ context.Context, days int) (int64, error) {
	f.pruneDays = days
	return 3, f.err
}

func (f *fakeService) DeviceURL() string { return f.deviceURL }

func (f *fakeService) SetDeviceURL(url string) error {
	if !strings.HasPrefix(url, "http") {
		return apperr.Config("url", "invalid device url %q", url)
	}
	f.deviceURL = url
	return nil
}

func newTestRouter(t *testing.T, svc *fakeService) http.Handler {
	t.Helper()
	return NewRouter(svc, metrics.NewMetrics(), zaptest.NewLogger(t))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, &fakeService{}), http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a generated request id header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeService{}).ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("Expected req-42, got %q", got)
	}
}

func TestRefreshReturnsLatestView(t *testing.T) {
	svc := &fakeService{view: model.NewLatestView(model.Expand(model.Snapshot{Temperature: 21.5, Timestamp: 5000}))}
	rec := do(t, newTestRouter(t, svc), http.MethodPost, "/readings/refresh", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.reconciled {
		t.Error("Expected Reconcile to be called")
	}

	var view map[string]model.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view[model.Temperature].Value != 21.5 {
		t.Errorf("Expected temperature 21.5, got %+v", view[model.Temperature])
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"transport": {apperr.Transport("fetch device", 503, nil), http.StatusBadGateway},
		"decode":    {apperr.Decode("decode", errors.New("bad json")), http.StatusUnprocessableEntity},
		"storage":   {apperr.Storage("insert", errors.New("disk full")), http.StatusInternalServerError},
		"config":    {apperr.Config("sensor_type", "unknown"), http.StatusBadRequest},
		"deadline":  {context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, newTestRouter(t, &fakeService{err: tc.err}), http.MethodPost, "/device/fetch", "")

			if rec.Code != tc.status {
				t.Errorf("Expected %d, got %d", tc.status, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Errorf("Expected JSON error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	do(t, h, http.MethodGet, "/readings/ph/history", "")
	if svc.historyType != model.PH || svc.limit != defaultHistoryLimit {
		t.Errorf("Expected ph with default limit, got %s/%d", svc.historyType, svc.limit)
	}

	do(t, h, http.MethodGet, "/readings/ph/history?limit=5000", "")
	if svc.limit != maxHistoryLimit {
		t.Errorf("Expected limit capped at %d, got %d", maxHistoryLimit, svc.limit)
	}

	rec := do(t, h, http.MethodGet, "/readings/ph/history?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestRangeRequiresBounds(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	if rec := do(t, h, http.MethodGet, "/readings/temperature/range?start=10", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without end, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/readings/temperature/range?start=10&end=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.rangeArgs != [2]int64{10, 20} {
		t.Errorf("Expected range 10..20, got %v", svc.rangeArgs)
	}
}

func TestPrune(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestRouter(t, svc), http.MethodDelete, "/readings?older_than_days=30", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.pruneDays != 30 {
		t.Errorf("Expected 30 days, got %d", svc.pruneDays)
	}
	if !strings.Contains(rec.Body.String(), `"deleted":3`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestPrune_RejectsOutOfRangeAge(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	for _, raw := range []string{"99999999999999999999", "abc", ""} {
		rec := do(t, h, http.MethodDelete, "/readings?older_than_days="+raw, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("older_than_days=%q: expected 400, got %d", raw, rec.Code)
		}
	}
	if svc.pruneDays != 0 {
		t.Errorf("Expected service not to be called, got %d days", svc.pruneDays)
	}
}

func TestThresholdRoutes(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	if rec := do(t, h, http.MethodGet, "/thresholds/pressure", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown sensor type, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodPut, "/thresholds/temperature", `{"max_value": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.threshold.MaxValue != 30 {
		t.Errorf("Expected max 30, got %+v", svc.threshold)
	}

	rec = do(t, h, http.MethodPut, "/thresholds/temperature", `{"max_value": 30, "min_value": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.threshold.MinValue != 5 || svc.threshold.MaxValue != 30 {
		t.Errorf("Expected range 5..30, got %+v", svc.threshold)
	}

	if rec := do(t, h, http.MethodPut, "/thresholds/temperature", `{"min_value": 5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without max_value, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/thresholds/temperature", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestDeviceURLRoutes(t *testing.T) {
	svc := &fakeService{deviceURL: "http://localhost/data"}
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodPut, "/device/url", `{"url": "http://192.168.1.20/data"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/device/url", "")
	if !strings.Contains(rec.Body.String(), "192.168.1.20") {
		t.Errorf("Expected updated url, got %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodPut, "/device/url", `{"url": "ftp://x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid url, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, &fakeService{})
	do(t, h, http.MethodGet, "/sensors", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="sensors"`) {
		t.Error("Expected the sensors route to be counted")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestRouter(t, &fakeService{}), http.MethodPost, "/sensors", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestRangeAcceptsDates(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestRouter(t, svc), http.MethodGet, "/readings/humidity/range?start=2025-01-01&end=2025-01-02T00:00:00Z", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.rangeArgs != [2]int64{1735689600000, 1735776000000} {
		t.Errorf("Unexpected range: %v", svc.rangeArgs)
	}
}
