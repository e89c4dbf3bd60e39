package model_test

import (
	"strings"
	"testing"

	"github.com/septivank/sensor-monitor-worker/internal/model"
)

func TestExpand_SevenReadingsInOrder(t *testing.T) {
	snapshot := model.Snapshot{
		Temperature:  45.0,
		Humidity:     50.0,
		WaterLevel:   30,
		PH:           7,
		Salinity:     10,
		Rain:         true,
		SoilMoisture: 40,
		Timestamp:    1700000000000,
	}

	readings := model.Expand(snapshot)

	if len(readings) != 7 {
		t.Fatalf("Expected 7 readings, got %d", len(readings))
	}

	expectedTypes := model.SensorTypes()
	expectedValues := []float64{45.0, 50.0, 30, 7, 10, 1.0, 40}
	for i, r := range readings {
		if r.SensorType != expectedTypes[i] {
			t.Errorf("Reading %d: expected type %s, got %s", i, expectedTypes[i], r.SensorType)
		}
		if r.Value != expectedValues[i] {
			t.Errorf("Reading %d: expected value %v, got %v", i, expectedValues[i], r.Value)
		}
		if r.Timestamp != snapshot.Timestamp {
			t.Errorf("Reading %d: expected timestamp %d, got %d", i, snapshot.Timestamp, r.Timestamp)
		}
		if r.IsAlert {
			t.Errorf("Reading %d: expected is_alert=false", i)
		}
		if r.ID != nil {
			t.Errorf("Reading %d: expected nil id", i)
		}
	}
}

func TestExpand_RainFalseIsZero(t *testing.T) {
	readings := model.Expand(model.Snapshot{Rain: false, Timestamp: 1})

	if readings[5].SensorType != model.Rain {
		t.Fatalf("Expected rain at index 5, got %s", readings[5].SensorType)
	}
	if readings[5].Value != 0.0 {
		t.Errorf("Expected rain value 0.0, got %v", readings[5].Value)
	}
}

func TestIsKnownSensorType(t *testing.T) {
	for _, st := range model.SensorTypes() {
		if !model.IsKnownSensorType(st) {
			t.Errorf("Expected %s to be known", st)
		}
	}

	if model.IsKnownSensorType("pressure") {
		t.Error("Expected pressure to be unknown")
	}
	if model.IsKnownSensorType("") {
		t.Error("Expected empty type to be unknown")
	}
}

func TestDefaultThreshold(t *testing.T) {
	th := model.DefaultThreshold(model.Temperature)
	if th.MinValue != 10 || th.MaxValue != 40 {
		t.Errorf("Expected temperature default (10,40), got (%v,%v)", th.MinValue, th.MaxValue)
	}

	th = model.DefaultThreshold(model.Humidity)
	if th.MinValue != 20 || th.MaxValue != 80 {
		t.Errorf("Expected humidity default (20,80), got (%v,%v)", th.MinValue, th.MaxValue)
	}

	th = model.DefaultThreshold("unknown")
	if th.MinValue != 0 || th.MaxValue != 100 {
		t.Errorf("Expected fallback (0,100), got (%v,%v)", th.MinValue, th.MaxValue)
	}
}

func TestLatestView_MergeKeepsNewest(t *testing.T) {
	view := model.NewLatestView([]model.Reading{
		model.NewReading(model.Temperature, 20, 2000, false),
		model.NewReading(model.Temperature, 25, 1000, false),
	})

	if got := view[model.Temperature].Value; got != 20 {
		t.Errorf("Expected newest value 20, got %v", got)
	}

	view.Merge([]model.Reading{model.NewReading(model.Temperature, 30, 3000, true)})
	if got := view[model.Temperature]; got.Value != 30 || !got.IsAlert {
		t.Errorf("Expected merged reading 30/alert, got %+v", got)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	snapshot, err := model.DecodeSnapshot([]byte(`{"temperature":0,"humidity":60,"water_level":45,"ph":7.2,"salinity":15,"rain":false,"soil_moisture":55,"timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	if snapshot.Temperature != 0 || snapshot.PH != 7.2 || snapshot.Rain || snapshot.Timestamp != 1700000000000 {
		t.Errorf("Unexpected snapshot: %+v", snapshot)
	}
}

func TestDecodeSnapshot_MissingField(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		missing string
	}{
		{"no temperature", `{"humidity":60,"water_level":45,"ph":7.2,"salinity":15,"rain":false,"soil_moisture":55,"timestamp":1}`, "temperature"},
		{"no rain", `{"temperature":20,"humidity":60,"water_level":45,"ph":7.2,"salinity":15,"soil_moisture":55,"timestamp":1}`, "rain"},
		{"null timestamp", `{"temperature":20,"humidity":60,"water_level":45,"ph":7.2,"salinity":15,"rain":false,"soil_moisture":55,"timestamp":null}`, "timestamp"},
		{"empty object", `{}`, "soil_moisture"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.DecodeSnapshot([]byte(tt.payload))
			if err == nil {
				t.Fatal("Expected error for incomplete snapshot")
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("Expected error to name %q, got %v", tt.missing, err)
			}
		})
	}
}

func TestDisplayNameAndUnit(t *testing.T) {
	if got := model.DisplayName(model.WaterLevel); got != "Water Level" {
		t.Errorf("Expected 'Water Level', got '%s'", got)
	}
	if got := model.Unit(model.Salinity); got != "ppt" {
		t.Errorf("Expected 'ppt', got '%s'", got)
	}
	if got := model.DisplayName("x"); got != "Unknown Sensor" {
		t.Errorf("Expected 'Unknown Sensor', got '%s'", got)
	}
}
