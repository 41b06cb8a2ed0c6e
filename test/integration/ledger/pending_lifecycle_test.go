// Exercises a pending transaction moving to posted (the hold releases
// into a posted balance) and to archived (the hold releases with no
// posted effect).
package ledger_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/test/integration/testenv"
)

func submitPendingTransfer(t *testing.T, h *testenv.Harness, instanceID, cashAddr, revAddr, source, sourceIdempK string) {
	t.Helper()
	payload := queue.CreateTransactionPayload{
		Status: ledger.StatusPending,
		Entries: []queue.EntryInputPayload{
			{AccountAddress: cashAddr, Type: ledger.EntryDebit, Amount: 100, Currency: "USD"},
			{AccountAddress: revAddr, Type: ledger.EntryCredit, Amount: 100, Currency: "USD"},
		},
	}
	cmd := queue.Command{
		ID: uuid.NewString(), InstanceID: instanceID, Type: queue.CommandCreateTransaction,
		Source: source, SourceIdempK: sourceIdempK, Payload: testenv.MustMarshal(t, payload),
	}
	_, err := h.Submit(t, cmd)
	require.NoError(t, err)
}

func TestUpdateTransaction_PendingThenPosted_MovesBalanceFromPendingToPosted(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	revAddr := testenv.UniqueAddress("rev_sales")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)
	createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

	source, sourceIdempK := "test-suite", uuid.NewString()
	submitPendingTransfer(t, h, inst.ID, cashAddr, revAddr, source, sourceIdempK)

	cash := h.GetAccount(t, inst.ID, cashAddr)
	assert.Equal(t, int64(100), cash.Pending.Amount, "hold reserves the cash leg as pending")
	assert.Equal(t, int64(0), cash.Posted.Amount)
	assert.Equal(t, int64(0), cash.Available, "a pending debit on a debit-normal account leaves available at the posted amount, 0 here")

	updatePayload := queue.UpdateTransactionPayload{NewStatus: ledger.StatusPosted}
	updateCmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandUpdateTransaction,
		Source: source, SourceIdempK: sourceIdempK, UpdateIdempK: uuid.NewString(),
		Payload: testenv.MustMarshal(t, updatePayload),
	}
	_, err := h.Submit(t, updateCmd)
	require.NoError(t, err)

	cash = h.GetAccount(t, inst.ID, cashAddr)
	rev := h.GetAccount(t, inst.ID, revAddr)

	assert.Equal(t, int64(0), cash.Pending.Amount, "posting releases the pending hold")
	assert.Equal(t, int64(100), cash.Posted.Amount)
	assert.Equal(t, int64(100), cash.Available)

	assert.Equal(t, int64(0), rev.Pending.Amount)
	assert.Equal(t, int64(100), rev.Posted.Amount)
	assert.Equal(t, int64(100), rev.Available)

	txnID := h.TransactionIDFor(t, inst.ID, source, sourceIdempK)
	txn := h.GetTransaction(t, txnID)
	assert.Equal(t, ledger.StatusPosted, txn.Status)
	assert.NotNil(t, txn.PostedAt, "posted_at is stamped on the move to posted")
}

func TestUpdateTransaction_PendingThenArchived_ReleasesHoldWithNoPostedEffect(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	revAddr := testenv.UniqueAddress("rev_sales")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)
	createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

	source, sourceIdempK := "test-suite", uuid.NewString()
	submitPendingTransfer(t, h, inst.ID, cashAddr, revAddr, source, sourceIdempK)

	updatePayload := queue.UpdateTransactionPayload{NewStatus: ledger.StatusArchived}
	updateCmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandUpdateTransaction,
		Source: source, SourceIdempK: sourceIdempK, UpdateIdempK: uuid.NewString(),
		Payload: testenv.MustMarshal(t, updatePayload),
	}
	_, err := h.Submit(t, updateCmd)
	require.NoError(t, err)

	cash := h.GetAccount(t, inst.ID, cashAddr)
	rev := h.GetAccount(t, inst.ID, revAddr)

	assert.Equal(t, int64(0), cash.Pending.Amount, "archiving releases the hold instead of posting it")
	assert.Equal(t, int64(0), cash.Posted.Amount)
	assert.Equal(t, int64(0), cash.Available)

	assert.Equal(t, int64(0), rev.Pending.Amount)
	assert.Equal(t, int64(0), rev.Posted.Amount)

	txnID := h.TransactionIDFor(t, inst.ID, source, sourceIdempK)
	txn := h.GetTransaction(t, txnID)
	assert.Equal(t, ledger.StatusArchived, txn.Status)
	assert.Nil(t, txn.PostedAt, "archiving never stamps posted_at")
}
