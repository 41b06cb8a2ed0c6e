// Exercises creating a posted transaction with balanced double-entry
// legs, and rejecting one whose legs don't balance.
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

func createTestAccount(t *testing.T, h *testenv.Harness, instanceID, address string, typ ledger.AccountType) {
	t.Helper()
	payload := queue.CreateAccountPayload{Address: address, Name: address, Type: typ, Currency: "USD"}
	cmd := queue.Command{
		ID: uuid.NewString(), InstanceID: instanceID, Type: queue.CommandCreateAccount,
		Source: "test-suite", SourceIdempK: uuid.NewString(), Payload: testenv.MustMarshal(t, payload),
	}
	_, err := h.Submit(t, cmd)
	require.NoError(t, err)
}

func TestCreateTransaction_PostedDirect_BalancesBothAccounts(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	revAddr := testenv.UniqueAddress("rev_sales")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)
	createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

	payload := queue.CreateTransactionPayload{
		Status: ledger.StatusPosted,
		Entries: []queue.EntryInputPayload{
			{AccountAddress: cashAddr, Type: ledger.EntryDebit, Amount: 100, Currency: "USD"},
			{AccountAddress: revAddr, Type: ledger.EntryCredit, Amount: 100, Currency: "USD"},
		},
	}
	cmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandCreateTransaction,
		Source: "test-suite", SourceIdempK: uuid.NewString(), Payload: testenv.MustMarshal(t, payload),
	}
	_, err := h.Submit(t, cmd)
	require.NoError(t, err)

	cash := h.GetAccount(t, inst.ID, cashAddr)
	rev := h.GetAccount(t, inst.ID, revAddr)

	assert.Equal(t, int64(100), cash.Posted.Amount)
	assert.Equal(t, int64(100), cash.Posted.Debit)
	assert.Equal(t, int64(0), cash.Posted.Credit)
	assert.GreaterOrEqual(t, cash.Available, int64(0))

	assert.Equal(t, int64(100), rev.Posted.Amount)
	assert.Equal(t, int64(100), rev.Posted.Credit)
	assert.Equal(t, int64(0), rev.Posted.Debit)
	assert.GreaterOrEqual(t, rev.Available, int64(0))
}

func TestCreateTransaction_UnbalancedEntries_IsDeadLettered(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	revAddr := testenv.UniqueAddress("rev_sales")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)
	createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

	payload := queue.CreateTransactionPayload{
		Status: ledger.StatusPosted,
		Entries: []queue.EntryInputPayload{
			{AccountAddress: cashAddr, Type: ledger.EntryDebit, Amount: 100, Currency: "USD"},
			{AccountAddress: revAddr, Type: ledger.EntryCredit, Amount: 90, Currency: "USD"},
		},
	}
	cmd := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandCreateTransaction,
		Source: "test-suite", SourceIdempK: uuid.NewString(), Payload: testenv.MustMarshal(t, payload),
	}
	_, err := h.Submit(t, cmd)
	require.Error(t, err, "per-currency debit/credit imbalance must be rejected")

	cash := h.GetAccount(t, inst.ID, cashAddr)
	assert.Equal(t, int64(0), cash.Posted.Amount, "no balance change on a rejected transaction")
}
