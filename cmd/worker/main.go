package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/anomaly"
	"github.com/septivank/sensor-monitor-worker/internal/config"
	"github.com/septivank/sensor-monitor-worker/internal/metrics"
	"github.com/septivank/sensor-monitor-worker/internal/worker"
)

func main() {
	var envFile string
	var once bool

	flagSet := pflag.NewFlagSet("sensor-monitor-worker", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment from this file instead of searching for .env")
	flagSet.BoolVar(&once, "once", false, "run a single device fetch cycle and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	loadEnv(envFile)

	var loop *worker.Loop
	app := fx.New(
		fx.Supply(runOptions{Once: once}),
		fx.Provide(
			config.Load,
			newLogger,
			metrics.NewMetrics,
			anomaly.NewDetector,
			ProvideValidator,
			ProvideStore,
			ProvideDeviceClient,
			ProvideDeviceTarget,
			ProvideRemoteClient,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideReconciler,
			ProvideWorkerLoop,
		),
		fx.Invoke(startWorkerLoop, startHTTPServer, startCommandConsumer),
		fx.Populate(&loop),
	)

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tempLogger, _ := newLogger(&config.Config{ServiceName: "sensor-monitor-worker"})
	tempLogger.Info("starting application...", zap.String("timeout", "30s"), zap.Bool("once", once))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: Failed to start within 30 seconds. This usually means a dependency (database, RabbitMQ or Kafka) is not accessible. Check the error messages above for specific connection failures.")
		}
		panic(err)
	}

	exitCode := 0
	if once {
		if err := loop.RunOnce(ctx); err != nil {
			exitCode = 1
		}
	} else {
		// Wait for interrupt signal
		<-ctx.Done()
	}

	// Stop application gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}

	if exitCode != 0 {
		stopCancel()
		cancel()
		os.Exit(exitCode)
	}
}

// loadEnv loads envFile when given, or the first .env found in the working
// directory or its parents.
func loadEnv(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", envFile, err)
			os.Exit(2)
		}
		fmt.Printf("Loaded environment from: %s\n", envFile)
		return
	}

	envPaths := []string{".env", "../../.env"}
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			absPath, _ := filepath.Abs(envPath)
			fmt.Printf("Loaded environment from: %s\n", absPath)
			return
		}
	}

	fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
}
