package anomaly

import (
	"fmt"

	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// Detector evaluates readings against per-sensor thresholds.
type Detector struct{}

// NewDetector creates a new threshold detector
func NewDetector() *Detector {
	return &Detector{}
}

// DetectAlert checks whether value falls strictly outside the threshold
// range. Values equal to either bound are not alerts.
func (d *Detector) DetectAlert(value float64, threshold model.Threshold) (bool, string) {
	if value < threshold.MinValue {
		return true, fmt.Sprintf("value %.2f below minimum %.2f", value, threshold.MinValue)
	}

	if value > threshold.MaxValue {
		return true, fmt.Sprintf("value %.2f above maximum %.2f", value, threshold.MaxValue)
	}

	return false, ""
}

// Apply sets IsAlert on the reading and returns the reason, if any.
func (d *Detector) Apply(reading *model.Reading, threshold model.Threshold) string {
	isAlert, reason := d.DetectAlert(reading.Value, threshold)
	reading.IsAlert = isAlert
	return reason
}
