// Package testenv spins up the shared infrastructure integration tests
// need: a single PostgreSQL testcontainer started once via sync.Once,
// loaded with the schema through WithInitScripts, and a Harness wiring
// a postgres.Store, the command registry and the queue scheduler on
// top of it. Each Harness stops its scheduler via t.Cleanup; the shared
// container is not terminated by this package.
package testenv

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	dbpostgres "github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/events"
	ledgerconfig "github.com/ledgerbank/ledger-core/internal/pkg/config"
	internalqueue "github.com/ledgerbank/ledger-core/internal/queue"
	"github.com/ledgerbank/ledger-core/internal/queue/workers"
	"github.com/ledgerbank/ledger-core/internal/occ"
)

const schemaPath = "../../../internal/infrastructure/database/postgres/migrations/0001_schema.sql"

var (
	containerOnce sync.Once
	sharedStore   *dbpostgres.Store
	containerErr  error
)

// DefaultConfig returns the fixed container credentials integration
// tests connect with.
func DefaultConfig() (database, username, password, image string) {
	return "ledger", "ledger", "ledger_test_pass", "postgres:16-alpine"
}

// sharedPool starts the container once for the whole test binary (spec
// scenarios are cheap enough, and schema-scoped, that per-test
// containers would dominate wall-clock for no isolation benefit — each
// test instead gets its own Instance address so rows never collide).
func sharedPool(t *testing.T) *dbpostgres.Store {
	containerOnce.Do(func() {
		ctx := context.Background()
		database, username, password, image := DefaultConfig()

		container, err := postgres.Run(ctx, image,
			postgres.WithDatabase(database),
			postgres.WithUsername(username),
			postgres.WithPassword(password),
			postgres.WithInitScripts(schemaPath),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres testcontainer: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("container host: %w", err)
			return
		}
		port, err := container.MappedPort(ctx, "5432")
		if err != nil {
			containerErr = fmt.Errorf("container port: %w", err)
			return
		}

		cfg := ledgerconfig.DatabaseConfig{
			Host:              host,
			Port:              port.Int(),
			Database:          database,
			User:              username,
			Password:          password,
			SSLMode:           "disable",
			MaxOpenConns:      10,
			MaxIdleConns:      2,
			ConnMaxLifetime:   30 * time.Minute,
			ConnMaxIdleTime:   5 * time.Minute,
			HealthCheckPeriod: time.Minute,
		}

		pool, err := dbpostgres.NewPool(ctx, cfg)
		if err != nil {
			containerErr = fmt.Errorf("new pool: %w", err)
			return
		}
		sharedStore = dbpostgres.NewStore(pool)
	})
	require.NoError(t, containerErr, "failed to initialize shared postgres testcontainer")
	return sharedStore
}

// Harness bundles a Store with a running Scheduler over the standard
// worker Registry, the minimum a command-processing integration test
// needs: Submit a command, then WaitForStatus on its queue item.
type Harness struct {
	Store     *dbpostgres.Store
	Registry  internalqueue.Registry
	Scheduler *internalqueue.Scheduler
	cancel    context.CancelFunc
}

// New builds a Harness against the shared container and starts its
// scheduler with test-fast intervals (short poll/backoff so scenario
// tests don't wait on production-sized timers). The scheduler is
// stopped automatically via t.Cleanup.
func New(t *testing.T) *Harness {
	store := sharedPool(t)

	qcfg := ledgerconfig.QueueConfig{
		MaxRetries:     5,
		RetryInterval:  20 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		BaseRetryDelay: 100 * time.Millisecond,
		MaxRetryDelay:  2 * time.Second,
		ProcessorName:  "ledger-core-test",
		StuckThreshold: 10 * time.Second,
		WorkerPoolSize: 4,
	}

	deps := workers.Deps{
		OCC:    occ.Config{MaxRetries: qcfg.MaxRetries, RetryInterval: qcfg.RetryInterval},
		Queue:  qcfg,
		Broker: events.GetBroker(),
	}
	registry := internalqueue.NewRegistry(deps)
	scheduler := internalqueue.NewScheduler(store, registry, qcfg, fmt.Sprintf("test-%d", time.Now().UnixNano()))

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	h := &Harness{Store: store, Registry: registry, Scheduler: scheduler, cancel: cancel}
	t.Cleanup(func() {
		scheduler.Stop()
		cancel()
	})
	return h
}
