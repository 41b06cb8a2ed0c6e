// Package components wires the whole process together: config,
// logger, Postgres pool, Kafka producer/consumer, the queue scheduler
// and registry, the SSE broker and the HTTP server, each brought up in
// its own init step behind a singleton GetInstance/New entry point
// with graceful shutdown on SIGINT/SIGTERM.
package components

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerbank/ledger-core/internal/api/routes"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/events"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/queue/kafka"
	"github.com/ledgerbank/ledger-core/internal/occ"
	"github.com/ledgerbank/ledger-core/internal/pkg/config"
	"github.com/ledgerbank/ledger-core/internal/pkg/logging"
	internalqueue "github.com/ledgerbank/ledger-core/internal/queue"
	"github.com/ledgerbank/ledger-core/internal/queue/workers"
)

// Container holds every application component and satisfies
// handlers.HandlerDependencies.
type Container struct {
	Config     *config.Config
	Store      *postgres.Store
	Broker     *events.Broker
	Producer   *kafka.Producer
	Consumer   *kafka.Consumer
	Registry   internalqueue.Registry
	WorkerDeps workers.Deps
	Scheduler  *internalqueue.Scheduler
	Router     *gin.Engine
	Server     *http.Server
}

var (
	instance     *Container
	instanceOnce sync.Once
	instanceErr  error
)

// GetInstance returns the singleton container instance.
func GetInstance() (*Container, error) {
	instanceOnce.Do(func() {
		instance, instanceErr = newContainer()
	})
	return instance, instanceErr
}

// New creates and initializes all application components. It returns
// the same singleton GetInstance does, so a second call yields the
// first container.
func New() (*Container, error) {
	return GetInstance()
}

func newContainer() (*Container, error) {
	container := &Container{}

	if err := container.initConfig(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	if err := container.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := container.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := container.initEventBroker(); err != nil {
		return nil, fmt.Errorf("failed to initialize event broker: %w", err)
	}
	if err := container.initKafka(); err != nil {
		return nil, fmt.Errorf("failed to initialize kafka: %w", err)
	}
	if err := container.initQueue(); err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if err := container.initServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	logging.Info("All components initialized successfully", nil)
	return container, nil
}

func (c *Container) initConfig() error {
	c.Config = config.Load()
	return nil
}

func (c *Container) initLogger() error {
	logging.Init(c.Config)
	logging.Info("Logger initialized", map[string]interface{}{"level": c.Config.Logging.Level})
	return nil
}

func (c *Container) initDatabase() error {
	pool, err := postgres.NewPool(context.Background(), c.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	c.Store = postgres.NewStore(pool)

	logging.Info("Database initialized", map[string]interface{}{
		"host":     c.Config.Database.Host,
		"port":     c.Config.Database.Port,
		"database": c.Config.Database.Database,
	})
	return nil
}

func (c *Container) initEventBroker() error {
	c.Broker = events.GetBroker()
	logging.Info("Event broker initialized", nil)
	return nil
}

// initKafka opens both halves of the command transport: the sync
// producer HTTP handlers publish to, and the consumer group that
// drains TopicCommandIntake into command_queue_items. Kafka can be
// disabled for local/dev runs; submitting a command with
// KAFKA_ENABLED=false only ever works through the ?sync=true path.
func (c *Container) initKafka() error {
	if os.Getenv("KAFKA_ENABLED") == "false" {
		logging.Info("Kafka disabled; only synchronous command submission is available", nil)
		return nil
	}

	kafkaConfig := kafka.NewConfigFromEnv()

	producer, err := kafka.NewProducer(kafkaConfig)
	if err != nil {
		logging.Warn("Failed to initialize Kafka producer, async submission unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	c.Producer = producer

	consumer, err := kafka.NewConsumer(kafkaConfig, c.Config.Kafka.ConsumerGroup, c.Store)
	if err != nil {
		logging.Warn("Failed to initialize Kafka consumer, command intake will not drain", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	c.Consumer = consumer
	consumer.Start()

	logging.Info("Kafka command transport initialized", map[string]interface{}{"brokers": kafkaConfig.Brokers})
	return nil
}

// initQueue builds the worker Deps, the per-command-type Registry and
// the Scheduler that polls command_queue_items (spec.md §4.C6/§4.C7),
// then starts it.
func (c *Container) initQueue() error {
	c.WorkerDeps = workers.Deps{
		OCC:    occ.Config{MaxRetries: c.Config.Queue.MaxRetries, RetryInterval: c.Config.Queue.RetryInterval},
		Queue:  c.Config.Queue,
		Broker: c.Broker,
	}
	c.Registry = internalqueue.NewRegistry(c.WorkerDeps)

	processorID := fmt.Sprintf("%s-%d", c.Config.Queue.ProcessorName, os.Getpid())
	c.Scheduler = internalqueue.NewScheduler(c.Store, c.Registry, c.Config.Queue, processorID)
	c.Scheduler.Start(context.Background())

	logging.Info("Queue scheduler started", map[string]interface{}{"processor_id": processorID})
	return nil
}

func (c *Container) initServer() error {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	c.Router = gin.Default()
	routes.RegisterRoutes(c.Router, c)

	c.Server = &http.Server{
		Addr:           c.Config.Server.Host + ":" + c.Config.Server.Port,
		Handler:        c.Router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	logging.Info("HTTP server configured", map[string]interface{}{"port": c.Config.Server.Port})
	return nil
}

// Start begins serving HTTP requests and blocks until a shutdown
// signal arrives.
func (c *Container) Start() error {
	logging.Info("Starting HTTP server", map[string]interface{}{"address": c.Server.Addr})

	go func() {
		if err := c.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Server failed to start", err, nil)
			os.Exit(1)
		}
	}()

	c.waitForShutdown()
	return nil
}

func (c *Container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("Shutting down server...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err, nil)
	}

	logging.Info("Server shutdown complete", nil)
}

// Shutdown gracefully stops every component in reverse init order.
func (c *Container) Shutdown(ctx context.Context) error {
	if err := c.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Consumer != nil {
		if err := c.Consumer.Stop(); err != nil {
			logging.Error("Failed to stop kafka consumer", err, nil)
		}
	}
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			logging.Error("Failed to close kafka producer", err, nil)
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
	return nil
}

// GetStore implements handlers.HandlerDependencies.
func (c *Container) GetStore() *postgres.Store { return c.Store }

// GetProducer implements handlers.HandlerDependencies.
func (c *Container) GetProducer() *kafka.Producer { return c.Producer }

// GetConfig implements handlers.HandlerDependencies.
func (c *Container) GetConfig() *config.Config { return c.Config }

// GetRegistry implements handlers.HandlerDependencies.
func (c *Container) GetRegistry() internalqueue.Registry { return c.Registry }

// GetWorkerDeps implements handlers.HandlerDependencies.
func (c *Container) GetWorkerDeps() workers.Deps { return c.WorkerDeps }

// GetRouter returns the Gin router, for test harnesses that want to
// drive the HTTP surface directly with httptest.
func (c *Container) GetRouter() *gin.Engine { return c.Router }
