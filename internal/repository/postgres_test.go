package repository_test

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/db"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/repository"
)

func newPostgresStore(t *testing.T) *repository.PostgresStore {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, zaptest.NewLogger(t), databaseURL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE sensor_readings, sensor_thresholds RESTART IDENTITY`); err != nil {
		t.Fatalf("Failed to reset tables: %v", err)
	}

	store := repository.NewPostgresStore(pool)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_InsertBatchAllOrNothing(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	readings := model.Expand(snapshotAt(1000))
	readings[3].SensorType = "bogus"

	if err := store.InsertBatch(ctx, readings); !apperr.IsStorage(err) {
		t.Fatalf("Expected storage error, got %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no rows after rolled back batch, got %d", count)
	}
}

func TestPostgresStore_LatestAllAndHistory(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	for _, ts := range []int64{2000, 3000, 1000} {
		if err := store.InsertBatch(ctx, model.Expand(snapshotAt(ts))); err != nil {
			t.Fatalf("InsertBatch(%d) failed: %v", ts, err)
		}
	}

	latest, err := store.LatestAll(ctx)
	if err != nil {
		t.Fatalf("LatestAll failed: %v", err)
	}
	if len(latest) != len(model.SensorTypes()) {
		t.Fatalf("Expected one row per sensor type, got %d", len(latest))
	}
	for _, r := range latest {
		if r.Timestamp != 3000 {
			t.Errorf("Expected %s latest timestamp 3000, got %d", r.SensorType, r.Timestamp)
		}
	}

	history, err := store.HistoryByType(ctx, model.Temperature, 10)
	if err != nil {
		t.Fatalf("HistoryByType failed: %v", err)
	}
	if len(history) != 3 || history[0].Timestamp != 3000 || history[2].Timestamp != 1000 {
		t.Errorf("Unexpected history order: %+v", history)
	}
}

func TestPostgresStore_Thresholds(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	th, err := store.GetThreshold(ctx, model.Humidity)
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if th.MinValue != 20 || th.MaxValue != 80 {
		t.Errorf("Expected default (20, 80), got (%.2f, %.2f)", th.MinValue, th.MaxValue)
	}

	if err := store.SetThreshold(ctx, model.Threshold{SensorType: model.Humidity, MinValue: 20, MaxValue: 70}); err != nil {
		t.Fatalf("SetThreshold failed: %v", err)
	}

	th, err = store.GetThreshold(ctx, model.Humidity)
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if th.MaxValue != 70 {
		t.Errorf("Expected max 70, got %.2f", th.MaxValue)
	}

	all, err := store.AllThresholds(ctx)
	if err != nil {
		t.Fatalf("AllThresholds failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected a single threshold row, got %d", len(all))
	}
}

func TestPostgresStore_RecoversAfterCanceledQuery(t *testing.T) {
	store := newPostgresStore(t)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.LatestAll(canceled); err == nil {
		t.Fatal("Expected canceled query to fail")
	}

	ctx := context.Background()
	if err := store.InsertBatch(ctx, model.Expand(snapshotAt(1000))); err != nil {
		t.Fatalf("InsertBatch after canceled query failed: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 7 {
		t.Errorf("Expected 7 rows, got %d", count)
	}
}
