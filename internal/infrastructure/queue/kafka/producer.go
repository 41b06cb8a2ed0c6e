package kafka

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/pkg/logging"
)

// Producer publishes commands to TopicCommandIntake synchronously, so
// a caller's HTTP handler knows the command survived a broker
// acknowledgment before it answers — sync rather than a
// fire-and-forget AsyncProducer, because command intake durability
// matters more here than raw throughput.
type Producer struct {
	producer sarama.SyncProducer
	config   *Config
	mu       sync.RWMutex
	closed   bool
}

// NewProducer opens a Kafka sync producer.
func NewProducer(config *Config) (*Producer, error) {
	saramaConfig, err := config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logging.Info("Kafka command producer initialized", map[string]interface{}{
		"brokers":   config.Brokers,
		"client_id": config.ClientID,
	})

	return &Producer{producer: producer, config: config}, nil
}

// PublishCommand serializes cmd and sends it to TopicCommandIntake,
// keyed by instance_id so all commands for one instance stay in
// partition order.
func (p *Producer) PublishCommand(cmd queue.Command) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicCommandIntake,
		Key:   sarama.StringEncoder(cmd.InstanceID),
		Value: sarama.ByteEncoder(body),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logging.Error("Failed to publish command to Kafka", err, map[string]interface{}{
			"instance_id": cmd.InstanceID,
			"type":        string(cmd.Type),
		})
		return fmt.Errorf("failed to send command to kafka: %w", err)
	}

	logging.Debug("Command published to Kafka", map[string]interface{}{
		"instance_id": cmd.InstanceID,
		"type":        string(cmd.Type),
		"partition":   partition,
		"offset":      offset,
	})
	return nil
}

// Close closes the underlying producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}

// IsHealthy reports whether the producer is still open.
func (p *Producer) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
