package ledger

import "time"

// Instance is the tenancy boundary spec.md §3 describes: it owns
// every Account, Transaction, Command and JournalEvent scoped beneath
// it, and cannot be deleted while it owns any of them.
type Instance struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Description string    `json:"description,omitempty"`
	Config      []byte    `json:"config,omitempty"`
	InsertedAt  time.Time `json:"inserted_at"`
}
