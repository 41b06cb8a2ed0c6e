package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// CreateTransactionInput is what ApplyCreate needs: the instance and
// the not-yet-persisted entries (account addresses still unresolved).
type CreateTransactionInput struct {
	InstanceID string
	Status     ledger.TransactionStatus
	Entries    []ledger.EntryInput
}

// UpdateTransactionInput is what ApplyUpdate needs: the transaction
// being mutated and its new status/entries.
type UpdateTransactionInput struct {
	TransactionID string
	NewStatus     ledger.TransactionStatus
	Entries       []ledger.EntryInput // empty means "keep existing amounts, just move status"
}

// resolveAccounts loads every referenced account by address within the
// instance, failing with ACCOUNT_MISSING per spec.md §4.C3 step 2 (the
// address lookup is itself instance-scoped, so a cross-instance
// address simply doesn't resolve).
func resolveAccounts(ctx context.Context, tx pgx.Tx, instanceID string, inputs []ledger.EntryInput) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(inputs))
	for _, in := range inputs {
		if _, ok := out[in.AccountAddress]; ok {
			continue
		}
		acc, err := GetAccountByAddress(ctx, tx, instanceID, in.AccountAddress)
		if err != nil {
			return nil, err
		}
		out[in.AccountAddress] = acc
	}
	return out, nil
}

// ApplyCreate runs spec.md §4.C3's numbered steps for a brand-new
// transaction, inside the caller's transaction (tx). It is meant to
// back the occ.StepTransaction step of a create_transaction pipeline:
// any STALE_ACCOUNT from an account UPDATE here must propagate
// unwrapped so ProcessWithRetry recognizes it.
func ApplyCreate(ctx context.Context, tx pgx.Tx, in CreateTransactionInput) (ledger.Transaction, error) {
	if err := ledger.ValidateCreateStatus(in.Status); err != nil {
		return ledger.Transaction{}, err
	}

	resolved := make([]ledger.ResolvedEntry, 0, len(in.Entries))
	accountsByAddr, err := resolveAccounts(ctx, tx, in.InstanceID, in.Entries)
	if err != nil {
		return ledger.Transaction{}, err
	}
	for _, e := range in.Entries {
		acc := accountsByAddr[e.AccountAddress]
		resolved = append(resolved, ledger.ResolvedEntry{AccountID: acc.ID, Type: e.Type, Value: e.Value})
	}

	if err := ledger.ValidateEntryCount(resolved); err != nil {
		return ledger.Transaction{}, err
	}
	if err := ledger.ValidateCurrencyBalance(resolved); err != nil {
		return ledger.Transaction{}, err
	}

	txn, err := InsertTransaction(ctx, tx, in.InstanceID, in.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}

	transition, err := ledger.ResolveTransition(true, "", in.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}

	for _, re := range resolved {
		acc := accountByID(accountsByAddr, re.AccountID)
		entry, err := InsertEntry(ctx, tx, ledger.Entry{TransactionID: txn.ID, AccountID: re.AccountID, Type: re.Type, Value: re.Value})
		if err != nil {
			return ledger.Transaction{}, err
		}
		txn.Entries = append(txn.Entries, entry)

		if err := applyAndPersist(ctx, tx, acc, entry, transition, 0); err != nil {
			return ledger.Transaction{}, err
		}
	}

	return txn, nil
}

// ApplyUpdate runs spec.md §4.C3's numbered steps for a transition on
// an existing transaction: pending_to_posted, pending_to_pending or
// pending_to_archived, depending on the requested new status.
func ApplyUpdate(ctx context.Context, tx pgx.Tx, in UpdateTransactionInput) (ledger.Transaction, error) {
	existing, err := GetTransaction(ctx, tx, in.TransactionID)
	if err != nil {
		return existing, err
	}

	transition, err := ledger.ResolveTransition(false, existing.Status, in.NewStatus)
	if err != nil {
		return existing, err
	}

	// Entries are matched to the existing transaction by account_id,
	// not by position (spec.md §4.C3 step 5): resolve each submitted
	// account_address against the accounts this transaction already
	// references, and fall back to the existing amount for any account
	// the update payload doesn't name (a pure status move names none).
	byAccountID := make(map[string]ledger.Account, len(existing.Entries))
	addrToAccountID := make(map[string]string, len(existing.Entries))
	newAmounts := make(map[string]int64, len(existing.Entries))
	for _, old := range existing.Entries {
		acc, err := GetAccountByID(ctx, tx, old.AccountID)
		if err != nil {
			return existing, err
		}
		byAccountID[old.AccountID] = acc
		addrToAccountID[acc.Address] = old.AccountID
		newAmounts[old.AccountID] = old.Value.Amount
	}
	for _, e := range in.Entries {
		accountID, ok := addrToAccountID[e.AccountAddress]
		if !ok {
			return existing, ledgererr.New(ledgererr.KindBalance, "ACCOUNT_SET_CHANGED", "update may not reference a new account")
		}
		newAmounts[accountID] = e.Value.Amount
	}

	resolved := make([]ledger.ResolvedEntry, 0, len(existing.Entries))
	for _, old := range existing.Entries {
		resolved = append(resolved, ledger.ResolvedEntry{
			AccountID: old.AccountID,
			Type:      old.Type,
			Value:     ledger.Money{Amount: newAmounts[old.AccountID], Currency: old.Value.Currency},
		})
	}

	if err := ledger.ValidateSameAccountSet(existing.Entries, resolved); err != nil {
		return existing, err
	}
	if err := ledger.ValidateCurrencyBalance(resolved); err != nil {
		return existing, err
	}

	if err := UpdateTransactionStatus(ctx, tx, existing.ID, in.NewStatus); err != nil {
		return existing, err
	}

	for i, re := range resolved {
		old := existing.Entries[i]
		acc := byAccountID[re.AccountID]

		if re.Value.Amount != old.Value.Amount {
			if err := UpdateEntryAmount(ctx, tx, old.ID, re.Value.Amount); err != nil {
				return existing, err
			}
		}

		entryForApply := ledger.Entry{ID: old.ID, TransactionID: existing.ID, AccountID: re.AccountID, Type: re.Type, Value: re.Value}
		if err := applyAndPersist(ctx, tx, acc, entryForApply, transition, old.Value.Amount); err != nil {
			return existing, err
		}
	}

	existing.Status = in.NewStatus
	return existing, nil
}

// applyAndPersist runs one entry's effect against its account,
// persists the OCC-guarded UPDATE, and writes the resulting
// BalanceHistoryEntry snapshot (spec.md §4.C3 steps 3 and 6). Any
// STALE_ACCOUNT here aborts the whole DB transaction per spec.md
// §4.C3's closing sentence.
func applyAndPersist(ctx context.Context, tx pgx.Tx, acc ledger.Account, entry ledger.Entry, transition ledger.TrxTransition, oldAmount int64) error {
	oldVersion := acc.LockVersion
	updated, err := acc.ApplyEntry(entry, transition, oldAmount)
	if err != nil {
		return err
	}
	if err := UpdateAccountOCC(ctx, tx, updated, oldVersion); err != nil {
		return err
	}
	return InsertBalanceHistoryEntry(ctx, tx, ledger.BalanceHistoryEntry{
		AccountID:  updated.ID,
		EntryID:    entry.ID,
		Posted:     updated.Posted,
		Pending:    updated.Pending,
		Available:  updated.Available,
		InsertedAt: time.Now().UTC(),
	})
}

func accountByID(byAddr map[string]ledger.Account, id string) ledger.Account {
	for _, a := range byAddr {
		if a.ID == id {
			return a
		}
	}
	return ledger.Account{}
}
