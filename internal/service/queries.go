package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/tools/timeparser"
)

// SensorInfo describes one sensor type for listings.
type SensorInfo struct {
	SensorType  string `json:"sensor_type"`
	DisplayName string `json:"display_name"`
	Unit        string `json:"unit"`
	HasReadings bool   `json:"has_readings"`
}

func checkSensorType(sensorType string) error {
	if !model.IsKnownSensorType(sensorType) {
		return apperr.Config("sensor_type", "unknown sensor type %q", sensorType)
	}
	return nil
}

// LatestReadings returns the latest stored reading of every sensor type
// without contacting the remote store.
func (r *Reconciler) LatestReadings(ctx context.Context) (model.LatestView, error) {
	readings, err := r.store.LatestAll(ctx)
	if err != nil {
		return nil, err
	}
	return model.NewLatestView(readings), nil
}

// History returns up to limit readings of a sensor type, newest first.
func (r *Reconciler) History(ctx context.Context, sensorType string, limit int) ([]model.Reading, error) {
	if err := checkSensorType(sensorType); err != nil {
		return nil, err
	}
	return r.store.HistoryByType(ctx, sensorType, limit)
}

// Range returns readings of a sensor type between start and end
// (milliseconds, inclusive), oldest first.
func (r *Reconciler) Range(ctx context.Context, sensorType string, start, end int64) ([]model.Reading, error) {
	if err := checkSensorType(sensorType); err != nil {
		return nil, err
	}
	if start > end {
		return nil, apperr.Config("range", "start %d is after end %d", start, end)
	}
	return r.store.RangeByType(ctx, sensorType, start, end)
}

// Sensors lists every known sensor type in expansion order.
func (r *Reconciler) Sensors(ctx context.Context) ([]SensorInfo, error) {
	stored, err := r.store.SensorTypes(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(stored))
	for _, t := range stored {
		present[t] = true
	}

	types := model.SensorTypes()
	infos := make([]SensorInfo, 0, len(types))
	for _, t := range types {
		infos = append(infos, SensorInfo{
			SensorType:  t,
			DisplayName: model.DisplayName(t),
			Unit:        model.Unit(t),
			HasReadings: present[t],
		})
	}
	return infos, nil
}

// Threshold returns the full threshold of a sensor type.
func (r *Reconciler) Threshold(ctx context.Context, sensorType string) (model.Threshold, error) {
	return r.store.GetThreshold(ctx, sensorType)
}

// MaxThreshold returns only the upper bound of a sensor type.
func (r *Reconciler) MaxThreshold(ctx context.Context, sensorType string) (float64, error) {
	threshold, err := r.store.GetThreshold(ctx, sensorType)
	if err != nil {
		return 0, err
	}
	return threshold.MaxValue, nil
}

// Thresholds returns the threshold of every known sensor type, storing
// defaults for types never accessed before.
func (r *Reconciler) Thresholds(ctx context.Context) ([]model.Threshold, error) {
	types := model.SensorTypes()
	thresholds := make([]model.Threshold, 0, len(types))
	for _, t := range types {
		threshold, err := r.store.GetThreshold(ctx, t)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, threshold)
	}
	return thresholds, nil
}

// SetThreshold replaces the upper bound of a sensor type and keeps its
// lower bound.
func (r *Reconciler) SetThreshold(ctx context.Context, sensorType string, maxValue float64) (model.Threshold, error) {
	threshold, err := r.store.GetThreshold(ctx, sensorType)
	if err != nil {
		return model.Threshold{}, err
	}
	threshold.MaxValue = maxValue
	return threshold, r.SetThresholdRange(ctx, threshold)
}

// SetThresholdRange replaces both bounds of a sensor type.
func (r *Reconciler) SetThresholdRange(ctx context.Context, threshold model.Threshold) error {
	if err := r.store.SetThreshold(ctx, threshold); err != nil {
		return err
	}
	r.logger.Info("threshold updated",
		zap.String("sensor_type", threshold.SensorType),
		zap.Float64("min_value", threshold.MinValue),
		zap.Float64("max_value", threshold.MaxValue),
	)
	return nil
}

// MaxPruneDays bounds the age accepted by Prune.
const MaxPruneDays = 36500

// Prune deletes readings older than days and returns how many were removed.
func (r *Reconciler) Prune(ctx context.Context, days int) (int64, error) {
	if days <= 0 || days > MaxPruneDays {
		return 0, apperr.Config("older_than_days", "must be between 1 and %d, got %d", MaxPruneDays, days)
	}

	cutoff := timeparser.ToMillis(r.now().AddDate(0, 0, -days))
	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	r.logger.Info("old readings deleted",
		zap.Int("older_than_days", days),
		zap.String("cutoff", timeparser.FormatTimestamp(cutoff)),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// DeviceURL returns the current device URL.
func (r *Reconciler) DeviceURL() string {
	if r.target == nil {
		return ""
	}
	return r.target.URL()
}

// SetDeviceURL replaces the device URL used by later fetches.
func (r *Reconciler) SetDeviceURL(url string) error {
	if r.target == nil {
		return apperr.Config("device", "device client is not configured")
	}
	if err := r.target.SetURL(url); err != nil {
		return err
	}
	r.logger.Info("device url updated", zap.String("url", r.target.URL()))
	return nil
}
