// Exercises an update_transaction arriving before its create_transaction
// counterpart has processed: it must revert to pending and retry once
// the dependency clears, never dead-letter while the dependency could
// still resolve.
package ledger_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/queue/workers"
	"github.com/ledgerbank/ledger-core/test/integration/testenv"
)

func TestUpdateTransaction_NoMatchingCreate_IsDeadLettered(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	updateCmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandUpdateTransaction,
		Source: "test-suite", SourceIdempK: uuid.NewString(), UpdateIdempK: uuid.NewString(),
		Payload: testenv.MustMarshal(t, queue.UpdateTransactionPayload{NewStatus: ledger.StatusPosted}),
	}
	_, err := h.Submit(t, updateCmd)
	require.Error(t, err, "an update with no create_transaction counterpart can never resolve")

	item := h.QueueItem(t, updateCmd.ID)
	assert.Equal(t, queue.StatusDeadLetter, item.Status)
}

func TestUpdateTransaction_DependencyPending_RevertsThenSucceedsOnceCreateProcesses(t *testing.T) {
	h := testenv.New(t)
	h.Scheduler.Stop() // drive every step manually so no background poll races this test's handcrafted pending state
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	revAddr := testenv.UniqueAddress("rev_sales")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)
	createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

	source, sourceIdempK := "test-suite", uuid.NewString()
	createPayload := queue.CreateTransactionPayload{
		Status: ledger.StatusPending,
		Entries: []queue.EntryInputPayload{
			{AccountAddress: cashAddr, Type: ledger.EntryDebit, Amount: 100, Currency: "USD"},
			{AccountAddress: revAddr, Type: ledger.EntryCredit, Amount: 100, Currency: "USD"},
		},
	}
	createCmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandCreateTransaction,
		Source: source, SourceIdempK: sourceIdempK, Payload: testenv.MustMarshal(t, createPayload),
	}
	// Left pending on purpose: this is the command an update_transaction
	// submitted too early would race against.
	insertedCreate, createItem := h.InsertPending(t, createCmd)

	updateCmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandUpdateTransaction,
		Source: source, SourceIdempK: sourceIdempK, UpdateIdempK: uuid.NewString(),
		Payload: testenv.MustMarshal(t, queue.UpdateTransactionPayload{NewStatus: ledger.StatusPosted}),
	}
	_, err := h.Submit(t, updateCmd)
	require.ErrorIs(t, err, workers.ErrDependencyPending)

	updateItem := h.QueueItem(t, updateCmd.ID)
	assert.Equal(t, queue.StatusPending, updateItem.Status, "revert_to_pending leaves the update retryable, not dead")
	assert.NotNil(t, updateItem.NextRetryAfter)

	// The create finally runs (the scheduler's next poll, in production).
	require.NoError(t, h.Process(t, insertedCreate, createItem))

	// Retry the update now that its dependency is processed.
	refreshed := h.QueueItem(t, updateCmd.ID)
	require.NoError(t, h.Process(t, updateCmd, refreshed))

	finalItem := h.QueueItem(t, updateCmd.ID)
	assert.Equal(t, queue.StatusProcessed, finalItem.Status)

	cash := h.GetAccount(t, inst.ID, cashAddr)
	assert.Equal(t, int64(100), cash.Posted.Amount, "the update applied once its dependency cleared")
}
