package queue

import "github.com/ledgerbank/ledger-core/internal/domain/ledger"

// CreateAccountPayload is the body of a create_account Command
// (spec.md §6).
type CreateAccountPayload struct {
	Address         string             `json:"address"`
	Name            string             `json:"name"`
	Type            ledger.AccountType `json:"type"`
	Currency        string             `json:"currency"`
	NormalBalance   *ledger.EntryType  `json:"normal_balance,omitempty"`
	AllowedNegative bool               `json:"allowed_negative,omitempty"`
	Description     string             `json:"description,omitempty"`
	Context         string             `json:"context,omitempty"`
}

// UpdateAccountPayload is the body of an update_account Command. Only
// Description and Context are mutable post-creation (spec.md §6); any
// other field present in the submitted payload is rejected as
// IMMUTABLE_FIELD by ValidatePayload at submission, before the command
// is inserted. The worker itself decodes only these two fields.
type UpdateAccountPayload struct {
	AccountAddress string  `json:"account_address"`
	Description    *string `json:"description,omitempty"`
	Context        *string `json:"context,omitempty"`
}

// EntryInputPayload mirrors ledger.EntryInput over the wire (account
// addresses, not resolved IDs — the applier resolves those inside the
// DB transaction per spec.md §4.C3 step order).
type EntryInputPayload struct {
	AccountAddress string          `json:"account_address"`
	Type           ledger.EntryType `json:"type"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
}

// CreateTransactionPayload is the body of a create_transaction
// Command: a status (posted or pending) and a balanced entry set.
type CreateTransactionPayload struct {
	Status  ledger.TransactionStatus `json:"status"`
	Entries []EntryInputPayload      `json:"entries"`
}

// UpdateTransactionPayload is the body of an update_transaction
// Command: a new status and/or entry amounts (the account/type set
// must stay identical, spec.md §4.C2 ValidateSameAccountSet). Unlike
// update_account, it carries no target id — a transaction id is
// system-generated, never known to the caller up front, so the worker
// resolves it from the PendingTransactionLookup row the original
// create_transaction command populated, keyed by this command's own
// (source, source_idempk) (spec.md §3, §4.C8).
type UpdateTransactionPayload struct {
	NewStatus ledger.TransactionStatus `json:"new_status"`
	Entries   []EntryInputPayload      `json:"entries,omitempty"`
}
