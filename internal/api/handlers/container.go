package handlers

import (
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/queue/kafka"
	"github.com/ledgerbank/ledger-core/internal/pkg/config"
	internalqueue "github.com/ledgerbank/ledger-core/internal/queue"
	"github.com/ledgerbank/ledger-core/internal/queue/workers"
)

// HandlerDependencies is the interface handlers depend on instead of a
// concrete Container, breaking the handlers<->components import cycle.
type HandlerDependencies interface {
	GetStore() *postgres.Store
	GetProducer() *kafka.Producer
	GetConfig() *config.Config
	GetRegistry() internalqueue.Registry
	GetWorkerDeps() workers.Deps
}
