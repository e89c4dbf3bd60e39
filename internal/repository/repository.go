// Package repository is the local durable store for sensor readings and
// thresholds. Both implementations hold a single connection behind a mutex:
// each call takes the lock for one statement or one transaction.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/validator"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store is closed")

// Store handles sensor reading and threshold persistence.
type Store interface {
	// Insert stores one reading and returns its identifier.
	Insert(ctx context.Context, reading model.Reading) (int64, error)

	// InsertBatch stores all readings in one transaction, or none of them.
	InsertBatch(ctx context.Context, readings []model.Reading) error

	// LatestByType returns the newest reading of a type, or nil when none exists.
	LatestByType(ctx context.Context, sensorType string) (*model.Reading, error)

	// LatestAll returns the newest reading of every stored type, one row per type.
	LatestAll(ctx context.Context) ([]model.Reading, error)

	// HistoryByType returns up to limit readings of a type, newest first.
	HistoryByType(ctx context.Context, sensorType string, limit int) ([]model.Reading, error)

	// RangeByType returns readings of a type with start <= timestamp <= end, oldest first.
	RangeByType(ctx context.Context, sensorType string, start, end int64) ([]model.Reading, error)

	// SensorTypes returns the distinct types present in storage.
	SensorTypes(ctx context.Context) ([]string, error)

	// Count returns the number of stored readings.
	Count(ctx context.Context) (int64, error)

	// DeleteBefore removes readings older than cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)

	// GetThreshold returns the stored threshold of a type. A missing row is
	// created from the built-in defaults first, so later reads always hit.
	GetThreshold(ctx context.Context, sensorType string) (model.Threshold, error)

	// SetThreshold inserts or replaces the threshold of a type.
	SetThreshold(ctx context.Context, threshold model.Threshold) error

	// AllThresholds returns every stored threshold.
	AllThresholds(ctx context.Context) ([]model.Threshold, error)

	// Close releases the connection.
	Close() error
}

// latestAllQuery picks the max-timestamp row per type; ties on timestamp
// resolve to the highest id. Placeholder-free, so it runs on both drivers.
const latestAllQuery = `
	SELECT sr.id, sr.sensor_type, sr.value, sr.timestamp, sr.is_alert
	FROM sensor_readings sr
	INNER JOIN (
		SELECT r.sensor_type, MAX(r.id) AS id
		FROM sensor_readings r
		INNER JOIN (
			SELECT sensor_type, MAX(timestamp) AS max_timestamp
			FROM sensor_readings
			GROUP BY sensor_type
		) latest ON r.sensor_type = latest.sensor_type AND r.timestamp = latest.max_timestamp
		GROUP BY r.sensor_type
	) pick ON sr.id = pick.id
	ORDER BY sr.sensor_type
`

func checkReading(reading model.Reading) error {
	if result := validator.ValidateReading(reading); !result.IsValid {
		return fmt.Errorf("rejected reading: %s", result.AnomalyReason)
	}
	return nil
}

func checkSensorType(sensorType string) error {
	if !model.IsKnownSensorType(sensorType) {
		return apperr.Config("sensor_type", "unknown sensor type %q", sensorType)
	}
	return nil
}

func checkThreshold(threshold model.Threshold) error {
	if err := checkSensorType(threshold.SensorType); err != nil {
		return err
	}
	if threshold.MinValue > threshold.MaxValue {
		return apperr.Config("threshold", "min_value %.2f exceeds max_value %.2f", threshold.MinValue, threshold.MaxValue)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
