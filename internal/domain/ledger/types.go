// Package ledger implements the double-entry balance engine: accounts,
// entries, transactions and the pure balance math that keeps them
// consistent. It has no knowledge of the command queue or HTTP layer.
package ledger

import "time"

// AccountType classifies an account for the purpose of deriving its
// normal balance side.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// EntryType is the side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// Opposite returns the other entry side.
func (t EntryType) Opposite() EntryType {
	if t == EntryDebit {
		return EntryCredit
	}
	return EntryDebit
}

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusArchived TransactionStatus = "archived"
)

// TrxTransition names one of the transitions Account.ApplyEntry knows
// how to perform. These are the only transitions spec.md §4.C2 allows.
type TrxTransition string

const (
	TransitionPosted          TrxTransition = "posted"
	TransitionPending         TrxTransition = "pending"
	TransitionPendingToPosted TrxTransition = "pending_to_posted"
	TransitionPendingToPending TrxTransition = "pending_to_pending"
	TransitionPendingToArchived TrxTransition = "pending_to_archived"
)

// DefaultNormalBalance derives the normal balance side for an account
// type. Callers may override this for contra-accounts at creation time.
func DefaultNormalBalance(t AccountType) EntryType {
	switch t {
	case AccountAsset, AccountExpense:
		return EntryDebit
	default:
		return EntryCredit
	}
}

// Money is the value carried by an Entry: a non-negative amount in a
// given currency's minor unit (cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// BalanceHistoryEntry is an immutable snapshot written whenever an
// account's balance mutates, sufficient to replay the account's
// current balance from its full history (spec.md §8 property 5).
type BalanceHistoryEntry struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	EntryID    string    `json:"entry_id"`
	Posted     Balance   `json:"posted"`
	Pending    Balance   `json:"pending"`
	Available  int64     `json:"available"`
	InsertedAt time.Time `json:"inserted_at"`
}
