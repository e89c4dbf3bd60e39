package validator_test

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/validator"
)

const testTimestampToleranceMinutes = 5

func validSnapshot(ts int64) model.Snapshot {
	return model.Snapshot{
		Temperature:  25,
		Humidity:     50,
		WaterLevel:   30,
		PH:           7,
		Salinity:     10,
		SoilMoisture: 40,
		Timestamp:    ts,
	}
}

func TestValidateSnapshot_ValidData(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	receivedAt := time.UnixMilli(1700000000000).Add(2 * time.Minute)
	result := v.ValidateSnapshot(validSnapshot(1700000000000), receivedAt)

	if !result.IsValid {
		t.Errorf("Expected valid result, got invalid: %s", result.AnomalyReason)
	}
	if result.ClockSkew {
		t.Error("Expected no clock skew")
	}
}

func TestValidateSnapshot_MissingTimestamp(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	result := v.ValidateSnapshot(validSnapshot(0), time.Now())

	if result.IsValid {
		t.Error("Expected invalid result for missing timestamp")
	}
	if result.AnomalyReason != "missing timestamp" {
		t.Errorf("Expected 'missing timestamp', got '%s'", result.AnomalyReason)
	}
}

func TestValidateSnapshot_NonFiniteValue(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	s := validSnapshot(1700000000000)
	s.PH = math.NaN()
	result := v.ValidateSnapshot(s, time.UnixMilli(1700000000000))

	if result.IsValid {
		t.Error("Expected invalid result for NaN value")
	}
	if result.AnomalyReason != "non-finite value for ph" {
		t.Errorf("Expected 'non-finite value for ph', got '%s'", result.AnomalyReason)
	}
}

func TestValidateSnapshot_ClockSkewStillValid(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	// Received 10 minutes later (outside ±5 minute tolerance)
	receivedAt := time.UnixMilli(1700000000000).Add(10 * time.Minute)
	result := v.ValidateSnapshot(validSnapshot(1700000000000), receivedAt)

	if !result.IsValid {
		t.Errorf("Expected skewed snapshot to stay valid, got: %s", result.AnomalyReason)
	}
	if !result.ClockSkew {
		t.Error("Expected clock skew to be reported")
	}
}

func TestValidateSnapshot_ToleranceDisabled(t *testing.T) {
	v := validator.NewValidator(0)

	result := v.ValidateSnapshot(validSnapshot(1), time.Now())

	if !result.IsValid || result.ClockSkew {
		t.Errorf("Expected valid, unskewed result, got %+v", result)
	}
}

func TestValidateReading_UnknownType(t *testing.T) {
	result := validator.ValidateReading(model.NewReading("pressure", 1013, 1, false))

	if result.IsValid {
		t.Error("Expected invalid result for unknown sensor type")
	}
}

func TestValidateReading_EmptyType(t *testing.T) {
	result := validator.ValidateReading(model.NewReading("", 1, 1, false))

	if result.AnomalyReason != "empty sensor type" {
		t.Errorf("Expected 'empty sensor type', got '%s'", result.AnomalyReason)
	}
}

func TestValidateReading_Valid(t *testing.T) {
	result := validator.ValidateReading(model.NewReading(model.Salinity, 12.5, 1, false))

	if !result.IsValid {
		t.Errorf("Expected valid result, got invalid: %s", result.AnomalyReason)
	}
}
