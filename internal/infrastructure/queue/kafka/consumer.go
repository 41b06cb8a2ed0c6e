package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/logging"
	"github.com/ledgerbank/ledger-core/internal/pkg/metrics"
)

// Consumer drains TopicCommandIntake into command_queue_items via
// postgres.InsertCommand, at-least-once: manual offset commit after
// successful processing, round-robin rebalance strategy, one shared
// consumer group so scaling out adds partitions' worth of parallelism
// rather than duplicate processing.
type Consumer struct {
	group  sarama.ConsumerGroup
	store  *postgres.Store
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer opens a Kafka consumer group bound to groupID, draining
// TopicCommandIntake.
func NewConsumer(config *Config, groupID string, store *postgres.Store) (*Consumer, error) {
	saramaConfig, err := config.ToSaramaConfig()
	if err != nil {
		return nil, err
	}

	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false

	group, err := sarama.NewConsumerGroup(config.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{group: group, store: store, ctx: ctx, cancel: cancel}, nil
}

// Start begins consuming in the background.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &commandHandler{store: c.store}
		for {
			if err := c.group.Consume(c.ctx, []string{TopicCommandIntake}, handler); err != nil {
				logging.Error("Error from command consumer", err, nil)
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				logging.Error("Command consumer group error", err, nil)
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

type commandHandler struct {
	store *postgres.Store
}

func (h *commandHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *commandHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim inserts every command into command_queue_items,
// treating IDEMPOTENCY_DUPLICATE as success (at-least-once delivery is
// expected to redeliver a command already seen) so a message is only
// left uncommitted, and so redelivered, on a genuine infrastructure
// failure.
func (h *commandHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := h.insert(session.Context(), message); err != nil {
				logging.Error("Failed to insert command from Kafka", err, map[string]interface{}{
					"offset": message.Offset,
				})
				continue
			}
			session.MarkMessage(message, "")
			session.Commit()
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *commandHandler) insert(ctx context.Context, message *sarama.ConsumerMessage) error {
	var cmd queue.Command
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return err
	}

	_, _, err := postgres.InsertCommand(ctx, h.store.Pool(), cmd)
	if err != nil {
		if ledgererr.Is(err, ledgererr.KindDuplicate) {
			return nil
		}
		return err
	}
	metrics.RecordCommandSubmitted(string(cmd.Type))
	return nil
}
