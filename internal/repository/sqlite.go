package repository

import (
	"context"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// SQLiteStore is the Store backed by a single SQLite connection.
type SQLiteStore struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// NewSQLiteStore wraps an open connection whose schema already exists.
func NewSQLiteStore(conn *sqlite.Conn) *SQLiteStore {
	return &SQLiteStore{conn: conn}
}

// acquire takes the store lock and arms the connection to abort when ctx
// is done. The returned release must always be called.
func (s *SQLiteStore) acquire(ctx context.Context, op string) (*sqlite.Conn, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, func() {}, apperr.Storage(op, err)
	}

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, func() {}, apperr.Storage(op, ErrClosed)
	}

	conn := s.conn
	conn.SetInterrupt(ctx.Done())
	return conn, func() {
		conn.SetInterrupt(nil)
		s.mu.Unlock()
	}, nil
}

// Insert inserts a single reading
func (s *SQLiteStore) Insert(ctx context.Context, reading model.Reading) (int64, error) {
	if err := checkReading(reading); err != nil {
		return 0, apperr.Storage("insert reading", err)
	}

	conn, release, err := s.acquire(ctx, "insert reading")
	if err != nil {
		return 0, err
	}
	defer release()

	if err := insertSQLite(conn, reading); err != nil {
		return 0, apperr.Storage("insert reading", err)
	}

	return conn.LastInsertRowID(), nil
}

// InsertBatch inserts readings within one IMMEDIATE transaction. Any row
// failure rolls back the rows inserted before it.
func (s *SQLiteStore) InsertBatch(ctx context.Context, readings []model.Reading) (err error) {
	if len(readings) == 0 {
		return nil
	}

	conn, release, err := s.acquire(ctx, "insert batch")
	if err != nil {
		return err
	}
	defer release()
	defer func() {
		err = apperr.Storage("insert batch", err)
	}()

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i, reading := range readings {
		if err = checkReading(reading); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err = insertSQLite(conn, reading); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	return nil
}

func insertSQLite(conn *sqlite.Conn, reading model.Reading) error {
	return sqlitex.Execute(conn,
		`INSERT INTO sensor_readings (sensor_type, value, timestamp, is_alert) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{reading.SensorType, reading.Value, reading.Timestamp, boolToInt(reading.IsAlert)},
		})
}

func scanSQLiteReading(stmt *sqlite.Stmt) model.Reading {
	id := stmt.ColumnInt64(0)
	return model.Reading{
		ID:         &id,
		SensorType: stmt.ColumnText(1),
		Value:      stmt.ColumnFloat(2),
		Timestamp:  stmt.ColumnInt64(3),
		IsAlert:    stmt.ColumnInt64(4) != 0,
	}
}

func (s *SQLiteStore) queryReadings(ctx context.Context, op, query string, args ...any) ([]model.Reading, error) {
	conn, release, err := s.acquire(ctx, op)
	if err != nil {
		return nil, err
	}
	defer release()

	readings := []model.Reading{}
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			readings = append(readings, scanSQLiteReading(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return readings, nil
}

// LatestByType returns the newest reading for a sensor type
func (s *SQLiteStore) LatestByType(ctx context.Context, sensorType string) (*model.Reading, error) {
	readings, err := s.queryReadings(ctx, "latest by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, sensorType)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// LatestAll returns the newest reading of every stored sensor type
func (s *SQLiteStore) LatestAll(ctx context.Context) ([]model.Reading, error) {
	return s.queryReadings(ctx, "latest all", latestAllQuery)
}

// HistoryByType returns recent readings for a sensor type, newest first
func (s *SQLiteStore) HistoryByType(ctx context.Context, sensorType string, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		return []model.Reading{}, nil
	}
	return s.queryReadings(ctx, "history by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, sensorType, limit)
}

// RangeByType returns readings for a sensor type within [start, end], oldest first
func (s *SQLiteStore) RangeByType(ctx context.Context, sensorType string, start, end int64) ([]model.Reading, error) {
	return s.queryReadings(ctx, "range by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC`, sensorType, start, end)
}

// SensorTypes returns the distinct sensor types in storage
func (s *SQLiteStore) SensorTypes(ctx context.Context) ([]string, error) {
	conn, release, err := s.acquire(ctx, "sensor types")
	if err != nil {
		return nil, err
	}
	defer release()

	types := []string{}
	err = sqlitex.Execute(conn, `SELECT DISTINCT sensor_type FROM sensor_readings ORDER BY sensor_type`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				types = append(types, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, apperr.Storage("sensor types", err)
	}
	return types, nil
}

// Count returns the number of stored readings
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	conn, release, err := s.acquire(ctx, "count readings")
	if err != nil {
		return 0, err
	}
	defer release()

	var count int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM sensor_readings`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, apperr.Storage("count readings", err)
	}
	return count, nil
}

// DeleteBefore removes readings older than cutoff
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	conn, release, err := s.acquire(ctx, "delete readings")
	if err != nil {
		return 0, err
	}
	defer release()

	err = sqlitex.Execute(conn, `DELETE FROM sensor_readings WHERE timestamp < ?`, &sqlitex.ExecOptions{
		Args: []any{cutoff},
	})
	if err != nil {
		return 0, apperr.Storage("delete readings", err)
	}
	return int64(conn.Changes()), nil
}

// GetThreshold returns the threshold for a sensor type, persisting the
// default on first access
func (s *SQLiteStore) GetThreshold(ctx context.Context, sensorType string) (model.Threshold, error) {
	if err := checkSensorType(sensorType); err != nil {
		return model.Threshold{}, err
	}

	conn, release, err := s.acquire(ctx, "get threshold")
	if err != nil {
		return model.Threshold{}, err
	}
	defer release()

	threshold, found, err := selectThresholdSQLite(conn, sensorType)
	if err != nil {
		return model.Threshold{}, apperr.Storage("get threshold", err)
	}
	if found {
		return threshold, nil
	}

	// First access: persist the default, then read back what is stored.
	def := model.DefaultThreshold(sensorType)
	err = sqlitex.Execute(conn, `
		INSERT INTO sensor_thresholds (sensor_type, min_value, max_value)
		VALUES (?, ?, ?)
		ON CONFLICT (sensor_type) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{def.SensorType, def.MinValue, def.MaxValue}})
	if err != nil {
		return model.Threshold{}, apperr.Storage("materialize threshold", err)
	}

	threshold, found, err = selectThresholdSQLite(conn, sensorType)
	if err != nil {
		return model.Threshold{}, apperr.Storage("get threshold", err)
	}
	if !found {
		return model.Threshold{}, apperr.Storage("get threshold", fmt.Errorf("threshold for %s missing after insert", sensorType))
	}
	return threshold, nil
}

func selectThresholdSQLite(conn *sqlite.Conn, sensorType string) (model.Threshold, bool, error) {
	var threshold model.Threshold
	found := false
	err := sqlitex.Execute(conn, `
		SELECT sensor_type, min_value, max_value
		FROM sensor_thresholds
		WHERE sensor_type = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sensorType},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				threshold = model.Threshold{
					SensorType: stmt.ColumnText(0),
					MinValue:   stmt.ColumnFloat(1),
					MaxValue:   stmt.ColumnFloat(2),
				}
				found = true
				return nil
			},
		})
	return threshold, found, err
}

// SetThreshold upserts the threshold for a sensor type
func (s *SQLiteStore) SetThreshold(ctx context.Context, threshold model.Threshold) error {
	if err := checkThreshold(threshold); err != nil {
		return err
	}

	conn, release, err := s.acquire(ctx, "set threshold")
	if err != nil {
		return err
	}
	defer release()

	err = sqlitex.Execute(conn, `
		INSERT INTO sensor_thresholds (sensor_type, min_value, max_value)
		VALUES (?, ?, ?)
		ON CONFLICT (sensor_type) DO UPDATE SET
			min_value = excluded.min_value,
			max_value = excluded.max_value`,
		&sqlitex.ExecOptions{Args: []any{threshold.SensorType, threshold.MinValue, threshold.MaxValue}})
	if err != nil {
		return apperr.Storage("set threshold", err)
	}
	return nil
}

// AllThresholds returns every stored threshold
func (s *SQLiteStore) AllThresholds(ctx context.Context) ([]model.Threshold, error) {
	conn, release, err := s.acquire(ctx, "all thresholds")
	if err != nil {
		return nil, err
	}
	defer release()

	thresholds := []model.Threshold{}
	err = sqlitex.Execute(conn, `SELECT sensor_type, min_value, max_value FROM sensor_thresholds ORDER BY sensor_type`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				thresholds = append(thresholds, model.Threshold{
					SensorType: stmt.ColumnText(0),
					MinValue:   stmt.ColumnFloat(1),
					MaxValue:   stmt.ColumnFloat(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, apperr.Storage("all thresholds", err)
	}
	return thresholds, nil
}

// Close closes the connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return apperr.Storage("close", err)
	}
	return nil
}
