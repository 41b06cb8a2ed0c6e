package queue

import (
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/queue/workers"
)

// NewRegistry builds the Registry every command type's handler is
// looked up from, one per action (spec.md §4.C7).
func NewRegistry(deps workers.Deps) Registry {
	return Registry{
		queue.CommandCreateAccount:     workers.NewCreateAccountHandler(deps),
		queue.CommandUpdateAccount:     workers.NewUpdateAccountHandler(deps),
		queue.CommandCreateTransaction: workers.NewCreateTransactionHandler(deps),
		queue.CommandUpdateTransaction: workers.NewUpdateTransactionHandler(deps),
	}
}
