package ledger

import (
	"fmt"
	"time"

	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// Transaction is a set of >=2 entries that net to zero per currency
// (spec.md §3).
type Transaction struct {
	ID         string
	InstanceID string
	Status     TransactionStatus
	PostedAt   *time.Time
	Entries    []Entry
}

// EntryInput is one line of a submitted transaction, before the
// account_address has been resolved to an account_id.
type EntryInput struct {
	AccountAddress string
	Type           EntryType
	Value          Money
}

// Input is the shape the applier (C3) receives: a status plus its
// entry list, already resolved to account IDs.
type Input struct {
	Status  TransactionStatus
	Entries []ResolvedEntry
}

// ResolvedEntry is an EntryInput after account_address -> account_id
// resolution.
type ResolvedEntry struct {
	AccountID string
	Type      EntryType
	Value     Money
}

// ValidateEntryCount enforces spec.md §3's >=2 entries invariant.
func ValidateEntryCount(entries []ResolvedEntry) error {
	if len(entries) < 2 {
		return ledgererr.New(ledgererr.KindBalance, "TOO_FEW_ENTRIES", "a transaction requires at least 2 entries")
	}
	return nil
}

// ValidateCurrencyBalance enforces that, per currency, the sum of
// debits equals the sum of credits (spec.md §3, §8 property 1/4).
func ValidateCurrencyBalance(entries []ResolvedEntry) error {
	totals := make(map[string]int64)
	for _, e := range entries {
		if e.Type == EntryDebit {
			totals[e.Value.Currency] += e.Value.Amount
		} else {
			totals[e.Value.Currency] -= e.Value.Amount
		}
	}
	for currency, net := range totals {
		if net != 0 {
			return ledgererr.Field(ledgererr.KindBalance, "CURRENCY_UNBALANCED", "entries",
				fmt.Sprintf("debits and credits for currency %s do not balance", currency))
		}
	}
	return nil
}

// ValidateCreateStatus rejects creating a transaction directly in the
// archived state (spec.md §3: "creating archived directly is
// forbidden").
func ValidateCreateStatus(status TransactionStatus) error {
	switch status {
	case StatusPending, StatusPosted:
		return nil
	default:
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_STATUS", "status", "a transaction may only be created as pending or posted")
	}
}

// ValidateSameAccountSet enforces that an update may change amounts
// but never the set of accounts a transaction references (spec.md
// §4.C3 step 4).
func ValidateSameAccountSet(oldEntries []Entry, newEntries []ResolvedEntry) error {
	old := make(map[string]EntryType, len(oldEntries))
	for _, e := range oldEntries {
		old[e.AccountID] = e.Type
	}
	seen := make(map[string]bool, len(newEntries))
	for _, e := range newEntries {
		et, ok := old[e.AccountID]
		if !ok {
			return ledgererr.New(ledgererr.KindBalance, "ACCOUNT_SET_CHANGED", "update may not reference a new account")
		}
		if et != e.Type {
			return ledgererr.New(ledgererr.KindBalance, "ENTRY_TYPE_FLIPPED", "an entry's debit/credit side cannot change")
		}
		seen[e.AccountID] = true
	}
	if len(seen) != len(old) {
		return ledgererr.New(ledgererr.KindBalance, "ACCOUNT_SET_CHANGED", "update may not drop a referenced account")
	}
	return nil
}

// ResolveTransition picks the TrxTransition for a transaction moving
// from oldStatus to newStatus (or being created directly at newStatus,
// when fromCreate is true). This is the only table of legal moves
// (spec.md §3, §4.C2); anything else is ErrInvalidTransition.
func ResolveTransition(fromCreate bool, oldStatus, newStatus TransactionStatus) (TrxTransition, error) {
	if fromCreate {
		switch newStatus {
		case StatusPosted:
			return TransitionPosted, nil
		case StatusPending:
			return TransitionPending, nil
		default:
			return "", ledgererr.ErrInvalidTransition
		}
	}

	if oldStatus != StatusPending {
		// posted and archived are terminal (spec.md §3).
		return "", ledgererr.ErrInvalidTransition
	}

	switch newStatus {
	case StatusPosted:
		return TransitionPendingToPosted, nil
	case StatusPending:
		return TransitionPendingToPending, nil
	case StatusArchived:
		return TransitionPendingToArchived, nil
	default:
		return "", ledgererr.ErrInvalidTransition
	}
}
