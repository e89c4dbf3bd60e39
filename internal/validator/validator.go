package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid       bool
	AnomalyReason string
	// ClockSkew is set when the snapshot timestamp is far from the time it
	// was received. Skewed snapshots are still valid.
	ClockSkew bool
}

// Validator handles snapshot validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateSnapshot checks that a decoded snapshot can be expanded into
// storable readings.
func (v *Validator) ValidateSnapshot(s model.Snapshot, receivedAt time.Time) ValidationResult {
	result := ValidationResult{IsValid: true}

	if s.Timestamp <= 0 {
		result.IsValid = false
		result.AnomalyReason = "missing timestamp"
		return result
	}

	for _, r := range model.Expand(s) {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			result.IsValid = false
			result.AnomalyReason = fmt.Sprintf("non-finite value for %s", r.SensorType)
			return result
		}
	}

	if v.timestampToleranceMinutes > 0 &&
		!timeparser.IsWithinTolerance(timeparser.FromMillis(s.Timestamp), receivedAt, v.timestampToleranceMinutes) {
		result.ClockSkew = true
		result.AnomalyReason = fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes)
	}

	return result
}

// ValidateReading validates a single reading before it is persisted.
func ValidateReading(r model.Reading) ValidationResult {
	result := ValidationResult{IsValid: true}

	if r.SensorType == "" {
		result.IsValid = false
		result.AnomalyReason = "empty sensor type"
		return result
	}

	if !model.IsKnownSensorType(r.SensorType) {
		result.IsValid = false
		result.AnomalyReason = fmt.Sprintf("unknown sensor type %q", r.SensorType)
		return result
	}

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		result.IsValid = false
		result.AnomalyReason = "non-finite value"
		return result
	}

	return result
}
