package ledger_test

import (
	"testing"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssetAccount(allowedNegative bool) ledger.Account {
	return ledger.Account{
		ID:              "acc-1",
		InstanceID:      "inst-1",
		Address:         "cash:main",
		Type:            ledger.AccountAsset,
		NormalBalance:   ledger.EntryDebit,
		Currency:        "USD",
		AllowedNegative: allowedNegative,
	}
}

func TestApplyEntryPostedDirect(t *testing.T) {
	acc := newAssetAccount(false)
	entry := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryDebit, Value: ledger.Money{Amount: 100, Currency: "USD"}}

	out, err := acc.ApplyEntry(entry, ledger.TransitionPosted, 0)

	require.NoError(t, err)
	assert.Equal(t, ledger.Balance{Amount: 100, Debit: 100}, out.Posted)
	assert.Equal(t, int64(100), out.Available)
}

func TestApplyEntryPendingHoldReservesAvailability(t *testing.T) {
	acc := newAssetAccount(false)
	acc.Posted = ledger.Balance{Amount: 100, Debit: 100}
	acc.Available = 100

	hold := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryCredit, Value: ledger.Money{Amount: 30, Currency: "USD"}}
	out, err := acc.ApplyEntry(hold, ledger.TransitionPending, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(70), out.Available)
}

func TestApplyEntryNegativeBalanceRejected(t *testing.T) {
	acc := newAssetAccount(false)
	acc.Posted = ledger.Balance{Amount: 50, Debit: 50}
	acc.Available = 50

	overdraft := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryCredit, Value: ledger.Money{Amount: 100, Currency: "USD"}}
	_, err := acc.ApplyEntry(overdraft, ledger.TransitionPosted, 0)

	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.KindBalance))
}

func TestApplyEntryAllowsNegativeWhenPermitted(t *testing.T) {
	acc := newAssetAccount(true)
	acc.Posted = ledger.Balance{Amount: 50, Debit: 50}

	overdraft := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryCredit, Value: ledger.Money{Amount: 100, Currency: "USD"}}
	out, err := acc.ApplyEntry(overdraft, ledger.TransitionPosted, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(-50), out.Posted.Amount)
	assert.Equal(t, int64(0), out.Available) // clamped, even though overdraft permitted
}

func TestApplyEntryCurrencyMismatch(t *testing.T) {
	acc := newAssetAccount(false)
	entry := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryDebit, Value: ledger.Money{Amount: 10, Currency: "EUR"}}

	_, err := acc.ApplyEntry(entry, ledger.TransitionPosted, 0)

	require.Error(t, err)
}

func TestApplyEntryPendingToPostedReleasesHold(t *testing.T) {
	acc := newAssetAccount(false)
	acc.Posted = ledger.Balance{Amount: 100, Debit: 100}
	held := ledger.Entry{AccountID: acc.ID, Type: ledger.EntryCredit, Value: ledger.Money{Amount: 30, Currency: "USD"}}
	acc, err := acc.ApplyEntry(held, ledger.TransitionPending, 0)
	require.NoError(t, err)
	require.Equal(t, int64(70), acc.Available)

	posted, err := acc.ApplyEntry(held, ledger.TransitionPendingToPosted, 30)
	require.NoError(t, err)
	assert.Equal(t, ledger.Balance{Amount: 70, Debit: 100, Credit: 30}, posted.Posted)
	assert.Equal(t, ledger.Balance{}, posted.Pending)
	assert.Equal(t, int64(70), posted.Available)
}
