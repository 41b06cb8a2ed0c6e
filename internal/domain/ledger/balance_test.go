package ledger_test

import (
	"testing"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
)

func TestUpdateBalance(t *testing.T) {
	tests := []struct {
		name string
		bal  ledger.Balance
		amt  int64
		et   ledger.EntryType
		ab   ledger.EntryType
		want ledger.Balance
	}{
		{
			name: "matching side increases amount",
			bal:  ledger.Balance{},
			amt:  100,
			et:   ledger.EntryDebit,
			ab:   ledger.EntryDebit,
			want: ledger.Balance{Amount: 100, Debit: 100},
		},
		{
			name: "opposite side decreases amount",
			bal:  ledger.Balance{Amount: 100, Debit: 100},
			amt:  30,
			et:   ledger.EntryCredit,
			ab:   ledger.EntryDebit,
			want: ledger.Balance{Amount: 70, Debit: 100, Credit: 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.UpdateBalance(tt.bal, tt.amt, tt.et, tt.ab)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReversePendingUndoesUpdate(t *testing.T) {
	ab := ledger.EntryDebit
	held := ledger.UpdateBalance(ledger.Balance{}, 50, ledger.EntryCredit, ab)
	released := ledger.ReversePending(held, 50, ledger.EntryCredit, ab)
	assert.Equal(t, ledger.Balance{}, released)
}

func TestReverseAndUpdatePending(t *testing.T) {
	ab := ledger.EntryCredit
	bal := ledger.UpdateBalance(ledger.Balance{}, 100, ledger.EntryDebit, ab)
	got := ledger.ReverseAndUpdatePending(bal, 100, 40, ledger.EntryDebit, ab)
	want := ledger.UpdateBalance(ledger.Balance{}, 40, ledger.EntryDebit, ab)
	assert.Equal(t, want, got)
}
