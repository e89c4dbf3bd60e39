package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/db"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Event brokers.
const (
	BrokerNone  = "none"
	BrokerAMQP  = "amqp"
	BrokerKafka = "kafka"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTPAddr    string
	Device      DeviceConfig
	Worker      WorkerConfig
	Remote      RemoteConfig
	Store       StoreConfig
	Events      EventsConfig
	RabbitMQ    RabbitMQConfig
	Kafka       KafkaConfig
	Validation  ValidationConfig
}

// DeviceConfig holds the device endpoint settings
type DeviceConfig struct {
	URL     string
	Timeout time.Duration
}

// WorkerConfig holds the periodic fetch settings
type WorkerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

// RemoteConfig holds the remote store settings
type RemoteConfig struct {
	URL           string
	Path          string
	MirrorPath    string
	FetchLimit    int
	Timeout       time.Duration
	MirrorEnabled bool
}

// StoreConfig selects and locates the local store
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

// EventsConfig selects where alert events go
type EventsConfig struct {
	Broker string
}

// RabbitMQConfig holds RabbitMQ connection, event and command queue settings.
// The command consumer runs only when CommandQueue is set.
type RabbitMQConfig struct {
	URL               string
	EventsExchange    string
	AlertRoutingKey   string
	CommandExchange   string
	CommandQueue      string
	CommandRoutingKey string
	DLQQueue          string
	PrefetchCount     int
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "sensor-monitor-worker"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8081"),
		Device: DeviceConfig{
			URL:     getEnv("DEVICE_URL", "http://localhost/data"),
			Timeout: getEnvAsDuration("DEVICE_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			Interval:     getEnvAsDuration("WORKER_INTERVAL", 15*time.Minute),
			CycleTimeout: getEnvAsDuration("WORKER_CYCLE_TIMEOUT", 60*time.Second),
		},
		Remote: RemoteConfig{
			URL:           getEnv("REMOTE_URL", "https://your-project-id.firebaseio.com"),
			Path:          getEnv("REMOTE_PATH", "sensor_readings"),
			MirrorPath:    getEnv("REMOTE_MIRROR_PATH", "sensor_readings_mirror"),
			FetchLimit:    getEnvAsInt("REMOTE_FETCH_LIMIT", 5),
			Timeout:       getEnvAsDuration("REMOTE_TIMEOUT", 10*time.Second),
			MirrorEnabled: getEnvAsBool("REMOTE_MIRROR_ENABLED", false),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
			SQLitePath:  getEnv("SQLITE_PATH", db.DefaultSQLitePath()),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Events: EventsConfig{
			Broker: strings.ToLower(getEnv("EVENTS_BROKER", BrokerNone)),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "sensor-monitor.events.exchange"),
			AlertRoutingKey:   getEnv("RABBITMQ_ALERT_ROUTING_KEY", "sensor.reading.alert"),
			CommandExchange:   getEnv("RABBITMQ_COMMAND_EXCHANGE", "sensor-monitor.command.exchange"),
			CommandQueue:      getEnv("RABBITMQ_COMMAND_QUEUE", ""),
			CommandRoutingKey: getEnv("RABBITMQ_COMMAND_ROUTING_KEY", "sensor.command"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "sensor-monitor.command.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 1),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "sensor.alerts"),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and the combinations that depend on each
// other.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return apperr.Config("SQLITE_PATH", "is required when STORE_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return apperr.Config("DATABASE_URL", "is required when STORE_DRIVER=postgres")
		}
	default:
		return apperr.Config("STORE_DRIVER", "must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}

	switch c.Events.Broker {
	case BrokerNone:
	case BrokerAMQP:
		if c.RabbitMQ.URL == "" {
			return apperr.Config("RABBITMQ_URL", "is required when EVENTS_BROKER=amqp")
		}
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			return apperr.Config("KAFKA_BROKERS", "is required when EVENTS_BROKER=kafka")
		}
	default:
		return apperr.Config("EVENTS_BROKER", "must be one of none, amqp, kafka, got %q", c.Events.Broker)
	}

	if c.RabbitMQ.CommandQueue != "" && c.RabbitMQ.URL == "" {
		return apperr.Config("RABBITMQ_URL", "is required when RABBITMQ_COMMAND_QUEUE is set")
	}
	if c.Remote.URL == "" {
		return apperr.Config("REMOTE_URL", "is required")
	}
	if c.Remote.MirrorEnabled && strings.Trim(c.Remote.MirrorPath, "/") == strings.Trim(c.Remote.Path, "/") {
		return apperr.Config("REMOTE_MIRROR_PATH", "must differ from REMOTE_PATH, got %q", c.Remote.MirrorPath)
	}
	if c.Remote.FetchLimit <= 0 {
		return apperr.Config("REMOTE_FETCH_LIMIT", "must be positive, got %d", c.Remote.FetchLimit)
	}
	if c.Worker.Interval <= 0 {
		return apperr.Config("WORKER_INTERVAL", "must be positive")
	}

	return nil
}

// UsesRabbitMQ reports whether any component needs a RabbitMQ connection.
func (c *Config) UsesRabbitMQ() bool {
	return c.Events.Broker == BrokerAMQP || c.RabbitMQ.CommandQueue != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
