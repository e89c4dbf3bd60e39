package db

import (
	"fmt"
	"strings"

	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// sensorTypeCheck renders the closed sensor set as an SQL IN list.
func sensorTypeCheck() string {
	types := model.SensorTypes()
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = "'" + t + "'"
	}
	return strings.Join(quoted, ", ")
}

// SQLiteSchema returns the statements that create the local schema.
// Every statement is idempotent.
func SQLiteSchema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sensor_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_type TEXT NOT NULL CHECK (sensor_type IN (%s)),
			value REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			is_alert INTEGER NOT NULL
		)`, sensorTypeCheck()),
		`CREATE INDEX IF NOT EXISTS idx_sensor_readings_type_ts
			ON sensor_readings (sensor_type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS sensor_thresholds (
			sensor_type TEXT PRIMARY KEY,
			min_value REAL NOT NULL,
			max_value REAL NOT NULL
		)`,
	}
}

// PostgresSchema is the PostgreSQL flavour of SQLiteSchema.
func PostgresSchema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sensor_readings (
			id BIGSERIAL PRIMARY KEY,
			sensor_type TEXT NOT NULL CHECK (sensor_type IN (%s)),
			value DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			is_alert BOOLEAN NOT NULL
		)`, sensorTypeCheck()),
		`CREATE INDEX IF NOT EXISTS idx_sensor_readings_type_ts
			ON sensor_readings (sensor_type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS sensor_thresholds (
			sensor_type TEXT PRIMARY KEY,
			min_value DOUBLE PRECISION NOT NULL,
			max_value DOUBLE PRECISION NOT NULL
		)`,
	}
}
