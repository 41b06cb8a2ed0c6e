// Package ledger_test exercises the command-processing core end to
// end against a real PostgreSQL testcontainer: build a Harness, submit
// commands, assert on persisted state.
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

func TestCreateAccount_Succeeds(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	addr := testenv.UniqueAddress("cash")
	payload := queue.CreateAccountPayload{
		Address:  addr,
		Name:     "Main Cash",
		Type:     ledger.AccountAsset,
		Currency: "USD",
	}
	cmd := queue.Command{
		ID:           uuid.NewString(),
		InstanceID:   inst.ID,
		Type:         queue.CommandCreateAccount,
		Source:       "test-suite",
		SourceIdempK: uuid.NewString(),
		Payload:      testenv.MustMarshal(t, payload),
	}

	_, err := h.Submit(t, cmd)
	require.NoError(t, err)

	acc := h.GetAccount(t, inst.ID, addr)
	assert.Equal(t, ledger.EntryDebit, acc.NormalBalance, "asset accounts default to debit normal balance")
	assert.Equal(t, int64(0), acc.Available)
	assert.Equal(t, int64(0), acc.Posted.Amount)
	assert.False(t, acc.AllowedNegative)
}

func TestCreateAccount_DuplicateSourceIdempK_IsRejected(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	sourceIdempK := uuid.NewString()
	payload := queue.CreateAccountPayload{
		Address: testenv.UniqueAddress("cash"), Name: "Cash", Type: ledger.AccountAsset, Currency: "USD",
	}
	first := queue.Command{
		ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandCreateAccount,
		Source: "test-suite", SourceIdempK: sourceIdempK, Payload: testenv.MustMarshal(t, payload),
	}
	_, err := h.Submit(t, first)
	require.NoError(t, err)

	// Same (instance, source, source_idempk) again: the unique
	// constraint converts this into IDEMPOTENCY_DUPLICATE at insert
	// time (spec.md §4.C9, §8 property 7) rather than a second Account.
	second := first
	second.ID = uuid.NewString()
	second.Payload = testenv.MustMarshal(t, queue.CreateAccountPayload{
		Address: testenv.UniqueAddress("cash2"), Name: "Cash 2", Type: ledger.AccountAsset, Currency: "USD",
	})
	_, err = h.Submit(t, second)
	require.Error(t, err)
}
