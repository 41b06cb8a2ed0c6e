package queue

import "time"

// JournalEvent is a frozen copy of a command's event_map taken at the
// moment of successful apply, suitable for replay and never mutated
// afterward (spec.md §3). The link tables below connect it back to
// the command, accounts and transactions it touched.
type JournalEvent struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	EventMap   []byte    `json:"event_map"`
	InsertedAt time.Time `json:"inserted_at"`
}

// PendingTransactionLookup is the correlation cache spec.md §3
// describes so an update_* command can locate its target pending
// transaction without scanning: PK is the (source, source_idempk,
// instance_id) triple.
type PendingTransactionLookup struct {
	Source         string    `json:"source"`
	SourceIdempK   string    `json:"source_idempk"`
	InstanceID     string    `json:"instance_id"`
	CommandID      string    `json:"command_id"`
	TransactionID  string    `json:"transaction_id"`
	JournalEventID string    `json:"journal_event_id"`
	InsertedAt     time.Time `json:"inserted_at"`
}

// LinkTarget is one row of an append-only many-to-one join producing
// the audit graph (spec.md §3: CommandTransactionLink,
// CommandAccountLink, JournalEventCommandLink, JournalEventAccountLink,
// JournalEventTransactionLink all share this (event_id, target_id, ts)
// shape).
type LinkTarget struct {
	EventID    string    `json:"event_id"`
	TargetID   string    `json:"target_id"`
	InsertedAt time.Time `json:"inserted_at"`
}
