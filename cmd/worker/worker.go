package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/anomaly"
	"github.com/septivank/sensor-monitor-worker/internal/api"
	"github.com/septivank/sensor-monitor-worker/internal/config"
	"github.com/septivank/sensor-monitor-worker/internal/db"
	"github.com/septivank/sensor-monitor-worker/internal/device"
	"github.com/septivank/sensor-monitor-worker/internal/metrics"
	"github.com/septivank/sensor-monitor-worker/internal/mq"
	"github.com/septivank/sensor-monitor-worker/internal/remote"
	"github.com/septivank/sensor-monitor-worker/internal/repository"
	"github.com/septivank/sensor-monitor-worker/internal/service"
	"github.com/septivank/sensor-monitor-worker/internal/validator"
	"github.com/septivank/sensor-monitor-worker/internal/worker"
)

// runOptions carries the command line switches into the fx graph.
type runOptions struct {
	Once bool
}

// ProvideStore opens the configured local store and closes it on stop.
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (repository.Store, error) {
	var store repository.Store

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(ctx, logger, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = repository.NewPostgresStore(pool)
	default:
		conn, err := db.OpenSQLite(logger, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = repository.NewSQLiteStore(conn)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing local store", zap.String("driver", cfg.Store.Driver))
			return store.Close()
		},
	})
	return store, nil
}

// ProvideDeviceClient creates the device HTTP client
func ProvideDeviceClient(logger *zap.Logger, cfg *config.Config) *device.Client {
	return device.NewClient(logger, cfg.Device.Timeout)
}

// ProvideDeviceTarget holds the configured device URL
func ProvideDeviceTarget(cfg *config.Config) *device.Target {
	return device.NewTarget(cfg.Device.URL)
}

// ProvideRemoteClient creates the remote store client
func ProvideRemoteClient(logger *zap.Logger, cfg *config.Config) *remote.Client {
	return remote.NewClient(logger, cfg.Remote.URL, cfg.Remote.Path, cfg.Remote.MirrorPath, cfg.Remote.Timeout)
}

// ProvideMQConnection connects to RabbitMQ when a component needs it, and
// returns nil otherwise.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.UsesRabbitMQ() {
		return nil, nil
	}

	conn, err := mq.Dial(logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}

// ProvidePublisher creates the alert event publisher for the configured
// broker.
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, logger *zap.Logger, cfg *config.Config) (mq.EventPublisher, error) {
	var publisher mq.EventPublisher

	switch cfg.Events.Broker {
	case config.BrokerAMQP:
		p, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.AlertRoutingKey, logger)
		if err != nil {
			return nil, err
		}
		publisher = p
	case config.BrokerKafka:
		p, err := mq.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return nil, err
		}
		publisher = p
	default:
		return mq.NoopPublisher{}, nil
	}

	logger.Info("alert events enabled", zap.String("broker", cfg.Events.Broker))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideReconciler wires the ingestion and reconciliation service
func ProvideReconciler(
	store repository.Store,
	deviceClient *device.Client,
	target *device.Target,
	remoteClient *remote.Client,
	publisher mq.EventPublisher,
	v *validator.Validator,
	detector *anomaly.Detector,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Reconciler {
	return service.NewReconciler(service.ReconcilerConfig{
		Store:            store,
		Device:           deviceClient,
		Target:           target,
		Remote:           remoteClient,
		Publisher:        publisher,
		Validator:        v,
		Detector:         detector,
		Metrics:          m,
		Logger:           logger,
		RemoteFetchLimit: cfg.Remote.FetchLimit,
		MirrorToRemote:   cfg.Remote.MirrorEnabled,
	})
}

// ProvideWorkerLoop creates the periodic device fetch loop
func ProvideWorkerLoop(rec *service.Reconciler, m *metrics.Metrics, cfg *config.Config, logger *zap.Logger) *worker.Loop {
	return worker.NewLoop(rec, cfg.Worker.Interval, cfg.Worker.CycleTimeout, logger, m)
}

func startWorkerLoop(lc fx.Lifecycle, loop *worker.Loop, opts runOptions) {
	if opts.Once {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			loop.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			defer cancel()
			return loop.Stop(stopCtx)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, rec *service.Reconciler, m *metrics.Metrics, cfg *config.Config, logger *zap.Logger, opts runOptions) {
	if opts.Once {
		return
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(rec, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("shutting down http server")
			return server.Shutdown(stopCtx)
		},
	})
}

func startCommandConsumer(lc fx.Lifecycle, conn *mq.Connection, rec *service.Reconciler, cfg *config.Config, logger *zap.Logger, opts runOptions) error {
	if opts.Once || conn == nil || cfg.RabbitMQ.CommandQueue == "" {
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.CommandQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.CommandExchange,
		RoutingKey:    cfg.RabbitMQ.CommandRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       rec.HandleCommand,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return consumer.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return consumer.Stop()
		},
	})
	return nil
}
