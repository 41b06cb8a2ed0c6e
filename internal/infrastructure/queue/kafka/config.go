// Package kafka is the durable command intake transport: commands
// accepted over HTTP are published here before a queue worker ever
// touches Postgres, so ingestion survives a database or worker outage.
package kafka

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Config holds Kafka producer/consumer configuration for command
// intake.
type Config struct {
	Brokers           []string
	ClientID          string
	EnableIdempotence bool
	CompressionType   string
	RequiredAcks      string
	MaxRetries        int
	RetryBackoff      time.Duration
}

// NewConfigFromEnv builds a Config from KAFKA_* environment variables.
func NewConfigFromEnv() *Config {
	brokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	return &Config{
		Brokers:           strings.Split(brokersStr, ","),
		ClientID:          getEnv("KAFKA_CLIENT_ID", "ledger-core"),
		EnableIdempotence: getEnvBool("KAFKA_ENABLE_IDEMPOTENCE", true),
		CompressionType:   getEnv("KAFKA_COMPRESSION_TYPE", "snappy"),
		RequiredAcks:      getEnv("KAFKA_REQUIRED_ACKS", "all"),
		MaxRetries:        getEnvInt("KAFKA_MAX_RETRIES", 5),
		RetryBackoff:      getEnvDuration("KAFKA_RETRY_BACKOFF", 100*time.Millisecond),
	}
}

// ToSaramaConfig converts to a sarama.Config. Idempotence defaults to
// true because command identity, not just delivery, matters: a
// duplicated publish must not mint two command rows, and Sarama's
// producer idempotence prevents duplicate publishes from a retried
// send at least at the transport level — InsertCommand's
// unique-constraint check is what catches the rest (a genuinely
// distinct publish of the same logical command).
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = c.EnableIdempotence
	cfg.Producer.Retry.Max = c.MaxRetries
	cfg.Producer.Retry.Backoff = c.RetryBackoff

	if c.EnableIdempotence {
		cfg.Net.MaxOpenRequests = 1
	} else {
		cfg.Net.MaxOpenRequests = 10
	}

	cfg.ChannelBufferSize = 100000
	cfg.Producer.Flush.MaxMessages = 10000
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Flush.Messages = 1000

	switch c.RequiredAcks {
	case "all", "-1":
		cfg.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		cfg.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("invalid required acks value: %s", c.RequiredAcks)
	}

	switch c.CompressionType {
	case "none":
		cfg.Producer.Compression = sarama.CompressionNone
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("invalid compression type: %s", c.CompressionType)
	}

	cfg.ClientID = c.ClientID
	cfg.Version = sarama.V3_0_0_0
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
