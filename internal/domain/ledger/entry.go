package ledger

// Entry is a single debit or credit against one account, part of one
// Transaction. Once created its Type cannot flip; Value may change
// only during the pending_to_* transitions the applier drives.
type Entry struct {
	ID            string
	TransactionID string
	AccountID     string
	Type          EntryType
	Value         Money
}

// Currency returns the entry's value currency, the one it must share
// with the account it posts against.
func (e Entry) Currency() string { return e.Value.Currency }
