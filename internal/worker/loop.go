// Package worker runs the periodic device ingestion loop.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/metrics"
	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// DefaultInterval is the time between two device fetches.
const DefaultInterval = 15 * time.Minute

// DeviceIngester fetches a device snapshot and ingests it.
type DeviceIngester interface {
	FetchFromDevice(ctx context.Context) ([]model.Reading, error)
}

// Loop calls the ingester once at start and then every interval. A failed
// or panicking cycle is logged and the loop keeps going.
type Loop struct {
	ingester     DeviceIngester
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a loop. A cycleTimeout of zero leaves cycles bounded only
// by the clients' own timeouts.
func NewLoop(ingester DeviceIngester, interval, cycleTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		ingester:     ingester,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// Start launches the loop in the background. It is a no-op when the loop
// is already running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	l.logger.Info("worker loop started",
		zap.Duration("interval", l.interval),
		zap.Duration("cycle_timeout", l.cycleTimeout),
	)

	go l.run(runCtx, l.done)
}

// Stop cancels the loop and waits for the current cycle to return or for
// ctx to expire.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		l.logger.Info("worker loop stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker loop did not stop: %w", ctx.Err())
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cycle and reports whether it succeeded.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker cycle panicked: %v", rec)
			l.logger.Error("worker cycle panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
		l.metrics.WorkerCycle(time.Since(start), err == nil)
	}()

	cycleCtx := ctx
	if l.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, l.cycleTimeout)
		defer cancel()
	}

	readings, err := l.ingester.FetchFromDevice(cycleCtx)
	if err != nil {
		l.logger.Error("worker cycle failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return err
	}

	l.logger.Info("worker cycle completed",
		zap.Int("readings_count", len(readings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
