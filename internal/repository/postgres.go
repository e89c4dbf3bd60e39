package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// PostgresStore is the Store backed by a PostgreSQL pool. Every call holds
// mu so operations run one at a time, like the SQLite store. The pool
// replaces connections broken by a cancelled query.
type PostgresStore struct {
	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool whose schema already exists.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) acquire(op string) (*pgxpool.Pool, func(), error) {
	s.mu.Lock()
	if s.pool == nil {
		s.mu.Unlock()
		return nil, func() {}, apperr.Storage(op, ErrClosed)
	}
	return s.pool, s.mu.Unlock, nil
}

// Insert inserts a single reading
func (s *PostgresStore) Insert(ctx context.Context, reading model.Reading) (int64, error) {
	if err := checkReading(reading); err != nil {
		return 0, apperr.Storage("insert reading", err)
	}

	pool, release, err := s.acquire("insert reading")
	if err != nil {
		return 0, err
	}
	defer release()

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO sensor_readings (sensor_type, value, timestamp, is_alert)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		reading.SensorType, reading.Value, reading.Timestamp, reading.IsAlert,
	).Scan(&id)
	if err != nil {
		return 0, apperr.Storage("insert reading", err)
	}
	return id, nil
}

// InsertBatch inserts readings within a transaction
func (s *PostgresStore) InsertBatch(ctx context.Context, readings []model.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	pool, release, err := s.acquire("insert batch")
	if err != nil {
		return err
	}
	defer release()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperr.Storage("insert batch", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	for i, reading := range readings {
		if err := checkReading(reading); err != nil {
			return apperr.Storage("insert batch", fmt.Errorf("row %d: %w", i+1, err))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO sensor_readings (sensor_type, value, timestamp, is_alert)
			VALUES ($1, $2, $3, $4)`,
			reading.SensorType, reading.Value, reading.Timestamp, reading.IsAlert,
		)
		if err != nil {
			return apperr.Storage("insert batch", fmt.Errorf("row %d: %w", i+1, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Storage("insert batch", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) queryReadings(ctx context.Context, op, query string, args ...any) ([]model.Reading, error) {
	pool, release, err := s.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	readings := []model.Reading{}
	for rows.Next() {
		var r model.Reading
		var id int64
		if err := rows.Scan(&id, &r.SensorType, &r.Value, &r.Timestamp, &r.IsAlert); err != nil {
			return nil, apperr.Storage(op, fmt.Errorf("failed to scan reading: %w", err))
		}
		r.ID = &id
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("rows iteration error: %w", err))
	}
	return readings, nil
}

// LatestByType returns the newest reading for a sensor type
func (s *PostgresStore) LatestByType(ctx context.Context, sensorType string) (*model.Reading, error) {
	readings, err := s.queryReadings(ctx, "latest by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = $1
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
func (s *PostgresStore) LatestAll(ctx context.Context) ([]model.Reading, error) {
	return s.queryReadings(ctx, "latest all", latestAllQuery)
}

// HistoryByType returns recent readings for a sensor type, newest first
func (s *PostgresStore) HistoryByType(ctx context.Context, sensorType string, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		return []model.Reading{}, nil
	}
	return s.queryReadings(ctx, "history by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`, sensorType, limit)
}

// RangeByType returns readings for a sensor type within [start, end], oldest first
func (s *PostgresStore) RangeByType(ctx context.Context, sensorType string, start, end int64) ([]model.Reading, error) {
	return s.queryReadings(ctx, "range by type", `
		SELECT id, sensor_type, value, timestamp, is_alert
		FROM sensor_readings
		WHERE sensor_type = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, id ASC`, sensorType, start, end)
}

// SensorTypes returns the distinct sensor types in storage
func (s *PostgresStore) SensorTypes(ctx context.Context) ([]string, error) {
	pool, release, err := s.acquire("sensor types")
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := pool.Query(ctx, `SELECT DISTINCT sensor_type FROM sensor_readings ORDER BY sensor_type`)
	if err != nil {
		return nil, apperr.Storage("sensor types", err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Storage("sensor types", err)
	}
	return types, nil
}

// Count returns the number of stored readings
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	pool, release, err := s.acquire("count readings")
	if err != nil {
		return 0, err
	}
	defer release()

	var count int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&count); err != nil {
		return 0, apperr.Storage("count readings", err)
	}
	return count, nil
}

// DeleteBefore removes readings older than cutoff
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	pool, release, err := s.acquire("delete readings")
	if err != nil {
		return 0, err
	}
	defer release()

	tag, err := pool.Exec(ctx, `DELETE FROM sensor_readings WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, apperr.Storage("delete readings", err)
	}
	return tag.RowsAffected(), nil
}

// GetThreshold returns the threshold for a sensor type, persisting the
// default on first access
func (s *PostgresStore) GetThreshold(ctx context.Context, sensorType string) (model.Threshold, error) {
	if err := checkSensorType(sensorType); err != nil {
		return model.Threshold{}, err
	}

	pool, release, err := s.acquire("get threshold")
	if err != nil {
		return model.Threshold{}, err
	}
	defer release()

	query := `
		SELECT sensor_type, min_value, max_value
		FROM sensor_thresholds
		WHERE sensor_type = $1
	`

	var threshold model.Threshold
	err = pool.QueryRow(ctx, query, sensorType).Scan(&threshold.SensorType, &threshold.MinValue, &threshold.MaxValue)
	if err == nil {
		return threshold, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Threshold{}, apperr.Storage("get threshold", err)
	}

	// Threshold doesn't exist, persist the default and read it back
	def := model.DefaultThreshold(sensorType)
	_, err = pool.Exec(ctx, `
		INSERT INTO sensor_thresholds (sensor_type, min_value, max_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (sensor_type) DO NOTHING`,
		def.SensorType, def.MinValue, def.MaxValue)
	if err != nil {
		return model.Threshold{}, apperr.Storage("materialize threshold", err)
	}

	err = pool.QueryRow(ctx, query, sensorType).Scan(&threshold.SensorType, &threshold.MinValue, &threshold.MaxValue)
	if err != nil {
		return model.Threshold{}, apperr.Storage("get threshold", err)
	}
	return threshold, nil
}

// SetThreshold upserts the threshold for a sensor type
func (s *PostgresStore) SetThreshold(ctx context.Context, threshold model.Threshold) error {
	if err := checkThreshold(threshold); err != nil {
		return err
	}

	pool, release, err := s.acquire("set threshold")
	if err != nil {
		return err
	}
	defer release()

	_, err = pool.Exec(ctx, `
		INSERT INTO sensor_thresholds (sensor_type, min_value, max_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (sensor_type) DO UPDATE SET
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value`,
		threshold.SensorType, threshold.MinValue, threshold.MaxValue)
	if err != nil {
		return apperr.Storage("set threshold", err)
	}
	return nil
}

// AllThresholds returns every stored threshold
func (s *PostgresStore) AllThresholds(ctx context.Context) ([]model.Threshold, error) {
	pool, release, err := s.acquire("all thresholds")
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := pool.Query(ctx, `SELECT sensor_type, min_value, max_value FROM sensor_thresholds ORDER BY sensor_type`)
	if err != nil {
		return nil, apperr.Storage("all thresholds", err)
	}
	defer rows.Close()

	thresholds := []model.Threshold{}
	for rows.Next() {
		var th model.Threshold
		if err := rows.Scan(&th.SensorType, &th.MinValue, &th.MaxValue); err != nil {
			return nil, apperr.Storage("all thresholds", err)
		}
		thresholds = append(thresholds, th)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("all thresholds", err)
	}
	return thresholds, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}
