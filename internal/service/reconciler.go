package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/anomaly"
	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/device"
	"github.com/septivank/sensor-monitor-worker/internal/logging"
	"github.com/septivank/sensor-monitor-worker/internal/metrics"
	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/mq"
	"github.com/septivank/sensor-monitor-worker/internal/repository"
	"github.com/septivank/sensor-monitor-worker/internal/validator"
	"github.com/septivank/sensor-monitor-worker/tools/timeparser"
)

// Snapshot sources, used in logs, metrics and alert events.
const (
	SourceDevice = "device"
	SourceRemote = "remote"
)

// DefaultRemoteFetchLimit is how many remote snapshots a reconciliation
// requests. Only the newest one is ingested.
const DefaultRemoteFetchLimit = 5

// DeviceFetcher fetches one snapshot from the device.
type DeviceFetcher interface {
	FetchSnapshot(ctx context.Context, url string) (model.Snapshot, error)
}

// RemoteStore is the remote ordered collection of snapshots.
type RemoteStore interface {
	FetchLatest(ctx context.Context, limit int) ([]model.Snapshot, error)
	PushReading(ctx context.Context, reading model.Reading) error
}

// ReconcilerConfig holds the reconciler dependencies and options.
type ReconcilerConfig struct {
	Store     repository.Store
	Device    DeviceFetcher
	Target    *device.Target
	Remote    RemoteStore
	Publisher mq.EventPublisher
	Validator *validator.Validator
	Detector  *anomaly.Detector
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// RemoteFetchLimit defaults to DefaultRemoteFetchLimit.
	RemoteFetchLimit int
	// MirrorToRemote pushes device-sourced readings to the remote store
	// after they are committed locally.
	MirrorToRemote bool
}

// Reconciler owns the single ingestion path shared by device fetches and
// remote reconciliation. It keeps no state between calls.
type Reconciler struct {
	store      repository.Store
	device     DeviceFetcher
	target     *device.Target
	remote     RemoteStore
	publisher  mq.EventPublisher
	validator  *validator.Validator
	detector   *anomaly.Detector
	metrics    *metrics.Metrics
	logger     *zap.Logger
	fetchLimit int
	mirror     bool
	now        func() time.Time
}

// NewReconciler creates a reconciler. Publisher, Validator and Detector
// fall back to no-op or default implementations when nil.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		store:      cfg.Store,
		device:     cfg.Device,
		target:     cfg.Target,
		remote:     cfg.Remote,
		publisher:  cfg.Publisher,
		validator:  cfg.Validator,
		detector:   cfg.Detector,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		fetchLimit: cfg.RemoteFetchLimit,
		mirror:     cfg.MirrorToRemote,
		now:        time.Now,
	}
	if r.publisher == nil {
		r.publisher = mq.NoopPublisher{}
	}
	if r.validator == nil {
		r.validator = validator.NewValidator(0)
	}
	if r.detector == nil {
		r.detector = anomaly.NewDetector()
	}
	if r.fetchLimit <= 0 {
		r.fetchLimit = DefaultRemoteFetchLimit
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Reconcile merges the newest remote snapshot into the local store and
// returns the resulting latest view. Remote failures only degrade the
// result to local data; store failures are returned.
func (r *Reconciler) Reconcile(ctx context.Context) (model.LatestView, error) {
	logger, _ := logging.WithCycleID(r.logger)
	logger.Info("reconciliation started")

	local, err := r.store.LatestAll(ctx)
	if err != nil {
		r.metrics.Reconciled("failed")
		logger.Error("failed to read local latest readings", zap.Error(err))
		return nil, err
	}
	view := model.NewLatestView(local)

	if r.remote == nil {
		r.metrics.Reconciled("no_remote")
		return view, nil
	}

	snapshots, err := r.remote.FetchLatest(ctx, r.fetchLimit)
	if err != nil {
		r.metrics.RemoteError("fetch latest")
		r.metrics.Reconciled("no_remote")
		logger.Warn("remote fetch failed, using local data only", zap.Error(err))
		return view, nil
	}
	if len(snapshots) == 0 {
		r.metrics.Reconciled("no_remote")
		logger.Info("remote store returned no snapshots")
		return view, nil
	}

	newest := newestSnapshot(snapshots)
	stored, err := r.alreadyStored(ctx, newest.Timestamp)
	if err != nil {
		r.metrics.Reconciled("failed")
		logger.Error("failed to look up remote snapshot locally", zap.Error(err))
		return nil, err
	}
	if stored {
		r.metrics.Reconciled("skipped")
		logger.Debug("newest remote snapshot is already stored",
			zap.Int64("timestamp", newest.Timestamp),
		)
		return view, nil
	}

	if _, err := r.ingest(ctx, logger, newest, SourceRemote); err != nil {
		var decodeErr *apperr.DecodeError
		if !errors.As(err, &decodeErr) {
			r.metrics.Reconciled("failed")
			return nil, err
		}
		// Bad remote data is a remote failure: keep serving local data.
		r.metrics.Reconciled("no_remote")
		logger.Warn("discarding invalid remote snapshot", zap.Error(err))
		return view, nil
	}

	after, err := r.store.LatestAll(ctx)
	if err != nil {
		r.metrics.Reconciled("failed")
		logger.Error("failed to re-read latest readings", zap.Error(err))
		return nil, err
	}
	r.metrics.Reconciled("ingested")
	logger.Info("reconciliation completed", zap.Int64("timestamp", newest.Timestamp))
	return model.NewLatestView(after), nil
}

// alreadyStored reports whether every sensor type has a reading stored at
// exactly timestamp. Older snapshots that were never stored do not count.
func (r *Reconciler) alreadyStored(ctx context.Context, timestamp int64) (bool, error) {
	for _, sensorType := range model.SensorTypes() {
		readings, err := r.store.RangeByType(ctx, sensorType, timestamp, timestamp)
		if err != nil {
			return false, err
		}
		if len(readings) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func newestSnapshot(snapshots []model.Snapshot) model.Snapshot {
	newest := snapshots[0]
	for _, s := range snapshots[1:] {
		if s.Timestamp > newest.Timestamp {
			newest = s
		}
	}
	return newest
}

// FetchFromDevice fetches a snapshot from the current device URL and
// ingests it.
func (r *Reconciler) FetchFromDevice(ctx context.Context) ([]model.Reading, error) {
	logger, _ := logging.WithCycleID(r.logger)

	if r.device == nil || r.target == nil {
		return nil, apperr.Config("device", "device client is not configured")
	}

	url := r.target.URL()
	logger.Info("fetching snapshot from device", zap.String("url", url))

	snapshot, err := r.device.FetchSnapshot(ctx, url)
	if err != nil {
		r.metrics.IngestFailed(SourceDevice)
		logger.Error("device fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}

	return r.ingest(ctx, logger, snapshot, SourceDevice)
}

// Ingest runs a snapshot through validation, threshold evaluation and one
// atomic batch insert. Events, metrics and mirroring happen only after
// the batch commits.
func (r *Reconciler) Ingest(ctx context.Context, snapshot model.Snapshot, source string) ([]model.Reading, error) {
	logger, _ := logging.WithCycleID(r.logger)
	return r.ingest(ctx, logger, snapshot, source)
}

type alert struct {
	reading   model.Reading
	threshold model.Threshold
	reason    string
}

func (r *Reconciler) ingest(ctx context.Context, logger *zap.Logger, snapshot model.Snapshot, source string) ([]model.Reading, error) {
	logger = logger.With(zap.String("source", source), zap.Int64("timestamp", snapshot.Timestamp))

	result := r.validator.ValidateSnapshot(snapshot, r.now())
	if !result.IsValid {
		r.metrics.IngestFailed(source)
		logger.Error("snapshot rejected", zap.String("reason", result.AnomalyReason))
		return nil, apperr.Decode("validate snapshot", errors.New(result.AnomalyReason))
	}
	if result.ClockSkew {
		logger.Warn("snapshot timestamp is skewed", zap.String("reason", result.AnomalyReason))
	}

	readings := model.Expand(snapshot)
	var alerts []alert

	for i := range readings {
		threshold, err := r.store.GetThreshold(ctx, readings[i].SensorType)
		if err != nil {
			r.metrics.IngestFailed(source)
			logger.Error("failed to load threshold",
				zap.String("sensor_type", readings[i].SensorType),
				zap.Error(err),
			)
			return nil, err
		}

		if reason := r.detector.Apply(&readings[i], threshold); readings[i].IsAlert {
			alerts = append(alerts, alert{reading: readings[i], threshold: threshold, reason: reason})
			logger.Debug("threshold exceeded",
				zap.String("sensor_type", readings[i].SensorType),
				zap.Float64("value", readings[i].Value),
				zap.String("reason", reason),
			)
		}
	}

	if err := r.store.InsertBatch(ctx, readings); err != nil {
		r.metrics.IngestFailed(source)
		logger.Error("failed to store readings", zap.Error(err))
		return nil, err
	}

	r.metrics.IngestSucceeded(source, readings)

	for _, a := range alerts {
		event := mq.NewAlertEvent(a.reading, a.threshold, a.reason, source)
		if err := r.publisher.PublishAlert(ctx, event); err != nil {
			logger.Warn("failed to publish alert event",
				zap.String("sensor_type", event.SensorType),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}

	if source == SourceDevice && r.mirror && r.remote != nil {
		r.mirrorReadings(ctx, logger, readings)
	}

	logger.Info("snapshot ingested",
		zap.String("snapshot_time", timeparser.FormatTimestamp(snapshot.Timestamp)),
		zap.Int("readings_count", len(readings)),
		zap.Int("alerts_count", len(alerts)),
	)

	return readings, nil
}

func (r *Reconciler) mirrorReadings(ctx context.Context, logger *zap.Logger, readings []model.Reading) {
	for _, reading := range readings {
		if err := r.remote.PushReading(ctx, reading); err != nil {
			r.metrics.RemoteError("push reading")
			logger.Warn("failed to mirror reading to remote store",
				zap.String("sensor_type", reading.SensorType),
				zap.Error(err),
			)
		}
	}
}
