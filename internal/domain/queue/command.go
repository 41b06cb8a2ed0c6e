// Package queue holds the command-queue data model from spec.md §3/§5:
// the Command envelope a caller submits, the CommandQueueItem a
// scheduler claims and retries, and the tagged-variant payloads each
// command type carries. It has no persistence or transport code of its
// own — internal/infrastructure/database/postgres and
// internal/infrastructure/queue/kafka depend on it, not the reverse.
package queue

import "time"

// CommandType enumerates the four mutating operations spec.md §3
// names. update_* commands depend on their create_* counterpart
// having already processed (spec.md §4.C8).
type CommandType string

const (
	CommandCreateAccount     CommandType = "create_account"
	CommandUpdateAccount     CommandType = "update_account"
	CommandCreateTransaction CommandType = "create_transaction"
	CommandUpdateTransaction CommandType = "update_transaction"
)

// DependsOnCreate reports whether this command type must wait for a
// create_* counterpart to have processed before it may run (spec.md
// §4.C8 dependency resolution).
func (t CommandType) DependsOnCreate() bool {
	return t == CommandUpdateAccount || t == CommandUpdateTransaction
}

// ItemStatus is the CommandQueueItem lifecycle state (spec.md §5).
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusProcessed  ItemStatus = "processed"
	StatusOCCTimeout ItemStatus = "occ_timeout"
	StatusFailed     ItemStatus = "failed"
	StatusDeadLetter ItemStatus = "dead_letter"
)

// Command is the record of intent spec.md §3 defines: the durable row
// a caller's submission produces, carrying the tagged event_map
// payload. Never deleted, never mutated after insertion.
type Command struct {
	ID              string      `json:"id"`
	InstanceID      string      `json:"instance_id"`
	Type            CommandType `json:"type"`
	Source          string      `json:"source"`
	SourceIdempK    string      `json:"source_idempk"`
	UpdateIdempK    string      `json:"update_idempk,omitempty"`
	InstanceAddress string      `json:"instance_address"`
	Payload         []byte      `json:"payload"`
	Sync            bool        `json:"-"`
	InsertedAt      time.Time   `json:"inserted_at"`
}

// IdempotencyKey is the unique-constraint identity spec.md §3/§4.C9
// requires for deduplication: (instance, source, source_idempk) for
// create-* actions, plus update_idempk for update-*.
func (c Command) IdempotencyKey() string {
	if c.UpdateIdempK != "" {
		return c.InstanceID + "|" + c.Source + "|" + c.SourceIdempK + "|" + c.UpdateIdempK
	}
	return c.InstanceID + "|" + c.Source + "|" + c.SourceIdempK
}

// ErrorEntry is one record in a CommandQueueItem's bounded, newest-
// first error trail (spec.md §4.C6 "errors log").
type ErrorEntry struct {
	Message    string    `json:"message"`
	InsertedAt time.Time `json:"inserted_at"`
}

// CommandQueueItem is the 1:1 durable, retry-tracked wrapper a
// scheduler claims and drives through the OCC pipeline (spec.md
// §3/§4.C5-C6). Field names follow the normative persisted-state
// layout in spec.md §6.
type CommandQueueItem struct {
	ID                   string
	CommandID            string
	Status               ItemStatus
	ProcessorID          string
	ProcessorVersion     int64
	ProcessingStartedAt  *time.Time
	ProcessingCompletedAt *time.Time
	RetryCount           int
	NextRetryAfter       *time.Time
	OCCRetryCount        int
	Errors               []ErrorEntry
	InsertedAt           time.Time
}

// PushError prepends an error entry, matching spec.md §4.C6's
// "bounded prepend; newest first" trail. max bounds the trail length;
// callers pass the scheduler's configured cap.
func (i *CommandQueueItem) PushError(message string, at time.Time, max int) {
	i.Errors = append([]ErrorEntry{{Message: message, InsertedAt: at}}, i.Errors...)
	if max > 0 && len(i.Errors) > max {
		i.Errors = i.Errors[:max]
	}
}

// backoffExponentCap (K in spec.md §4.C6's formula) bounds how far the
// exponent grows so retry_count doesn't overflow the shift once an
// item has failed a very large number of times.
const backoffExponentCap = 16

// NextBackoff implements spec.md §4.C6's scheduler-level retry
// scheduling policy: next_retry_after := now + base_retry_delay *
// 2^min(retry_count, K), clamped to maxDelay. This is deliberately the
// exponential sibling of occ.delay's linear schedule — the two retry
// postures spec.md §9 calls out as distinct and not to be conflated.
func NextBackoff(retryCount int, base, maxDelay time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	exp := retryCount
	if exp > backoffExponentCap {
		exp = backoffExponentCap
	}
	delay := base << uint(exp)
	if delay <= 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}
