// Package config loads every ambient setting the ledger core needs
// from the environment: the HTTP/CORS/logging surface, plus the
// database, Kafka and queue-scheduler sections a command-processing
// core needs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Queue    QueueConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig holds the pgxpool connection settings.
type DatabaseConfig struct {
	Host              string
	Port              int
	Database          string
	User              string
	Password          string
	SSLMode           string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func (c DatabaseConfig) ConnectionString() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// KafkaConfig holds the brokers and topic/consumer-group names the
// command intake transport connects to.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	EnableIdempotence bool
	CompressionType   string
	RequiredAcks      string
	MaxRetries        int
	RetryBackoff      time.Duration
	ConsumerGroup     string
}

// QueueConfig carries two textually distinct retry postures: the OCC
// driver's tight, linear retry budget for a single in-flight item
// (RetryInterval), and the scheduler's coarser exponential backoff for
// an item that has exhausted the OCC budget and is waiting for its
// next poll (BaseRetryDelay/MaxRetryDelay). Keeping them as separate
// fields lets each layer tune its own cadence without the other's
// units leaking in.
type QueueConfig struct {
	MaxRetries      int
	RetryInterval   time.Duration
	PollInterval    time.Duration
	BaseRetryDelay  time.Duration
	MaxRetryDelay   time.Duration
	ProcessorName   string
	StuckThreshold  time.Duration
	WorkerPoolSize  int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowHeaders:     getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Accept", "Idempotency-Key"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			Database:          getEnv("DB_NAME", "ledger"),
			User:              getEnv("DB_USER", "ledger"),
			Password:          getEnv("DB_PASSWORD", "ledger"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:      getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:      getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:   getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:   getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "ledger-core"),
			EnableIdempotence: getEnvAsBool("KAFKA_ENABLE_IDEMPOTENCE", false),
			CompressionType:   getEnv("KAFKA_COMPRESSION_TYPE", "snappy"),
			RequiredAcks:      getEnv("KAFKA_REQUIRED_ACKS", "all"),
			MaxRetries:        getEnvAsInt("KAFKA_MAX_RETRIES", 5),
			RetryBackoff:      getEnvAsDuration("KAFKA_RETRY_BACKOFF", 100*time.Millisecond),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "ledger-command-processors"),
		},
		Queue: QueueConfig{
			MaxRetries:     getEnvAsInt("QUEUE_MAX_RETRIES", 5),
			RetryInterval:  getEnvAsDuration("QUEUE_RETRY_INTERVAL", 200*time.Millisecond),
			PollInterval:   getEnvAsDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
			BaseRetryDelay: getEnvAsDuration("QUEUE_BASE_RETRY_DELAY", 30*time.Second),
			MaxRetryDelay:  getEnvAsDuration("QUEUE_MAX_RETRY_DELAY", time.Hour),
			ProcessorName:  getEnv("QUEUE_PROCESSOR_NAME", "event_queue"),
			StuckThreshold: getEnvAsDuration("QUEUE_STUCK_THRESHOLD", 2*time.Minute),
			WorkerPoolSize: getEnvAsInt("QUEUE_WORKER_POOL_SIZE", 4),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(name, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(getEnv(name, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(name string, defaultVal []string) []string {
	valStr := getEnv(name, "")
	if valStr == "" {
		return defaultVal
	}
	return strings.Split(valStr, ",")
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(name, "")); err == nil {
		return d
	}
	return defaultVal
}
