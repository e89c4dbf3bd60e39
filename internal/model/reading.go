// Package model holds the sensor reading types shared by the device and
// remote clients, the store and the reconciliation service.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot is one multi-sensor payload reported by the device at a single
// instant. Timestamp is in milliseconds since the Unix epoch.
type Snapshot struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	WaterLevel   float64 `json:"water_level"`
	PH           float64 `json:"ph"`
	Salinity     float64 `json:"salinity"`
	Rain         bool    `json:"rain"`
	SoilMoisture float64 `json:"soil_moisture"`
	Timestamp    int64   `json:"timestamp"`
}

// snapshotFields mirrors Snapshot with pointer fields so absent keys can be
// told apart from zero values.
type snapshotFields struct {
	Temperature  *float64 `json:"temperature"`
	Humidity     *float64 `json:"humidity"`
	WaterLevel   *float64 `json:"water_level"`
	PH           *float64 `json:"ph"`
	Salinity     *float64 `json:"salinity"`
	Rain         *bool    `json:"rain"`
	SoilMoisture *float64 `json:"soil_moisture"`
	Timestamp    *int64   `json:"timestamp"`
}

// DecodeSnapshot decodes a JSON snapshot. Every field must be present; a
// missing or null key is an error rather than a zero value.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var f snapshotFields
	if err := json.Unmarshal(data, &f); err != nil {
		return Snapshot{}, err
	}

	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("temperature", f.Temperature != nil)
	check("humidity", f.Humidity != nil)
	check("water_level", f.WaterLevel != nil)
	check("ph", f.PH != nil)
	check("salinity", f.Salinity != nil)
	check("rain", f.Rain != nil)
	check("soil_moisture", f.SoilMoisture != nil)
	check("timestamp", f.Timestamp != nil)
	if len(missing) > 0 {
		return Snapshot{}, fmt.Errorf("snapshot is missing %s", strings.Join(missing, ", "))
	}

	return Snapshot{
		Temperature:  *f.Temperature,
		Humidity:     *f.Humidity,
		WaterLevel:   *f.WaterLevel,
		PH:           *f.PH,
		Salinity:     *f.Salinity,
		Rain:         *f.Rain,
		SoilMoisture: *f.SoilMoisture,
		Timestamp:    *f.Timestamp,
	}, nil
}

// Reading is a single sensor value with its alert status. ID is nil until
// the reading has been stored.
type Reading struct {
	ID         *int64  `json:"id"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Timestamp  int64   `json:"timestamp"`
	IsAlert    bool    `json:"is_alert"`
}

// Threshold is the acceptable value range for one sensor type.
type Threshold struct {
	SensorType string  `json:"sensor_type"`
	MinValue   float64 `json:"min_value"`
	MaxValue   float64 `json:"max_value"`
}

// LatestView maps each sensor type to its most recent reading.
type LatestView map[string]Reading

// NewReading creates an unsaved reading.
func NewReading(sensorType string, value float64, timestamp int64, isAlert bool) Reading {
	return Reading{
		SensorType: sensorType,
		Value:      value,
		Timestamp:  timestamp,
		IsAlert:    isAlert,
	}
}

// Expand splits a snapshot into one reading per sensor type, in the fixed
// sensor order. Alert status is left false.
func Expand(s Snapshot) []Reading {
	rain := 0.0
	if s.Rain {
		rain = 1.0
	}

	return []Reading{
		NewReading(Temperature, s.Temperature, s.Timestamp, false),
		NewReading(Humidity, s.Humidity, s.Timestamp, false),
		NewReading(WaterLevel, s.WaterLevel, s.Timestamp, false),
		NewReading(PH, s.PH, s.Timestamp, false),
		NewReading(Salinity, s.Salinity, s.Timestamp, false),
		NewReading(Rain, rain, s.Timestamp, false),
		NewReading(SoilMoisture, s.SoilMoisture, s.Timestamp, false),
	}
}

// NewLatestView indexes readings by sensor type. When a type appears more
// than once the reading with the greater timestamp wins.
func NewLatestView(readings []Reading) LatestView {
	view := make(LatestView, len(readings))
	view.Merge(readings)
	return view
}

// Merge overlays readings onto the view, keeping the newest per type.
func (v LatestView) Merge(readings []Reading) {
	for _, r := range readings {
		if cur, ok := v[r.SensorType]; ok && cur.Timestamp > r.Timestamp {
			continue
		}
		v[r.SensorType] = r
	}
}
