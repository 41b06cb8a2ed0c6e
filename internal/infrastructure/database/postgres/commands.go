package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// InsertCommand writes the Command row and a matching CommandQueueItem
// in the caller's transaction. The (instance_id, source, source_idempk,
// update_idempk) unique constraint (spec.md §4.C9) is what turns a
// duplicate submission into ledgererr.KindDuplicate instead of a new
// row — translated here, not left as a raw Postgres error, so workers
// and the HTTP layer can switch on taxonomy.
func InsertCommand(ctx context.Context, q Querier, cmd queue.Command) (queue.Command, queue.CommandQueueItem, error) {
	var item queue.CommandQueueItem

	// A caller-assigned cmd.ID (the HTTP layer stamps one with
	// google/uuid before publishing to Kafka, so a 202 response can
	// hand back a stable id the caller can poll) wins over the
	// column's gen_random_uuid() default.
	err := q.QueryRow(ctx, `
		INSERT INTO commands (id, instance_id, type, source, source_idempk, update_idempk, instance_address, event_map)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2,$3,$4,$5,$6,$7,$8) RETURNING id, inserted_at
	`, cmd.ID, cmd.InstanceID, cmd.Type, cmd.Source, cmd.SourceIdempK, cmd.UpdateIdempK, cmd.InstanceAddress, cmd.Payload).
		Scan(&cmd.ID, &cmd.InsertedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return cmd, item, ledgererr.New(ledgererr.KindDuplicate, "DUPLICATE", "a command with this idempotency key already exists")
		}
		return cmd, item, err
	}

	item.CommandID = cmd.ID
	item.Status = queue.StatusPending
	err = q.QueryRow(ctx, `
		INSERT INTO command_queue_items (command_id, status) VALUES ($1, 'pending')
		RETURNING id, inserted_at
	`, cmd.ID).Scan(&item.ID, &item.InsertedAt)
	return cmd, item, err
}

// GetCommand reloads a Command envelope by id, for workers that need
// the full payload/type a scheduler's claimed CommandQueueItem only
// references by command_id.
func GetCommand(ctx context.Context, q Querier, id string) (queue.Command, error) {
	var cmd queue.Command
	err := q.QueryRow(ctx, `
		SELECT id, instance_id, type, source, source_idempk, update_idempk, instance_address, event_map, inserted_at
		FROM commands WHERE id = $1
	`, id).Scan(&cmd.ID, &cmd.InstanceID, &cmd.Type, &cmd.Source, &cmd.SourceIdempK, &cmd.UpdateIdempK,
		&cmd.InstanceAddress, &cmd.Payload, &cmd.InsertedAt)
	return cmd, err
}

// FindCreateQueueItem locates the create_* command's CommandQueueItem
// for a given (instance, source, source_idempk), the lookup spec.md
// §4.C8 dependency resolution is built on — it needs both the status
// (to classify ready / revert-to-pending / dead) and next_retry_after
// (to align an update's own rescheduled retry per spec.md's
// REVERT_TO_PENDING rule).
func FindCreateQueueItem(ctx context.Context, q Querier, instanceID, source, sourceIdempK string) (queue.CommandQueueItem, bool, error) {
	var item queue.CommandQueueItem
	var errorsJSON []byte
	row := q.QueryRow(ctx, `
		SELECT i.id, i.command_id, i.status, i.processor_id, i.processor_version, i.processing_started_at,
			i.processing_completed_at, i.retry_count, i.next_retry_after, i.occ_retry_count, i.errors, i.inserted_at
		FROM commands c
		JOIN command_queue_items i ON i.command_id = c.id
		WHERE c.instance_id = $1 AND c.source = $2 AND c.source_idempk = $3 AND c.update_idempk = ''
	`, instanceID, source, sourceIdempK)
	err := row.Scan(&item.ID, &item.CommandID, &item.Status, &item.ProcessorID, &item.ProcessorVersion,
		&item.ProcessingStartedAt, &item.ProcessingCompletedAt, &item.RetryCount, &item.NextRetryAfter,
		&item.OCCRetryCount, &errorsJSON, &item.InsertedAt)
	if err == pgx.ErrNoRows {
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &item.Errors); err != nil {
			return item, false, err
		}
	}
	return item, true, nil
}

// ClaimNextItems atomically claims up to limit claimable items
// (status in pending/failed/occ_timeout, due for retry), implementing
// spec.md §4.C5-C6's claim protocol: the UPDATE's WHERE clause
// including processor_version is what guarantees at-most-one claimant
// per row (spec.md §8 property 6) without ever blocking on a row lock.
func ClaimNextItems(ctx context.Context, q Querier, processorID string, limit int) ([]queue.CommandQueueItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, processor_version FROM command_queue_items
		WHERE status IN ('pending','failed','occ_timeout')
		  AND (next_retry_after IS NULL OR next_retry_after <= now())
		ORDER BY next_retry_after NULLS FIRST, inserted_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	type candidate struct {
		id      string
		version int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.version); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []queue.CommandQueueItem
	for _, c := range candidates {
		tag, err := q.Exec(ctx, `
			UPDATE command_queue_items
			SET status='processing', processor_id=$1, processing_started_at=now(),
			    next_retry_after=NULL, retry_count=retry_count+1, processor_version=processor_version+1
			WHERE id=$2 AND processor_version=$3
		`, processorID, c.id, c.version)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			continue // another worker claimed it first; not an error
		}
		item, err := GetQueueItem(ctx, q, c.id)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

// GetQueueItemByCommandID reloads a CommandQueueItem by its owning
// Command's id — the 1:1 lookup spec.md §3 describes ("a Command
// exclusively owns its CommandQueueItem"). Unlike FindCreateQueueItem,
// this has no update_idempk filter: it resolves a command's own queue
// item regardless of whether that command is a create_* or update_*.
func GetQueueItemByCommandID(ctx context.Context, q Querier, commandID string) (queue.CommandQueueItem, error) {
	var item queue.CommandQueueItem
	var errorsJSON []byte
	err := q.QueryRow(ctx, `
		SELECT id, command_id, status, processor_id, processor_version, processing_started_at,
			processing_completed_at, retry_count, next_retry_after, occ_retry_count, errors, inserted_at
		FROM command_queue_items WHERE command_id = $1
	`, commandID).Scan(&item.ID, &item.CommandID, &item.Status, &item.ProcessorID, &item.ProcessorVersion,
		&item.ProcessingStartedAt, &item.ProcessingCompletedAt, &item.RetryCount, &item.NextRetryAfter,
		&item.OCCRetryCount, &errorsJSON, &item.InsertedAt)
	if err != nil {
		return item, err
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &item.Errors); err != nil {
			return item, err
		}
	}
	return item, nil
}

// GetQueueItem reloads a CommandQueueItem by id.
func GetQueueItem(ctx context.Context, q Querier, id string) (queue.CommandQueueItem, error) {
	var item queue.CommandQueueItem
	var errorsJSON []byte
	err := q.QueryRow(ctx, `
		SELECT id, command_id, status, processor_id, processor_version, processing_started_at,
			processing_completed_at, retry_count, next_retry_after, occ_retry_count, errors, inserted_at
		FROM command_queue_items WHERE id = $1
	`, id).Scan(&item.ID, &item.CommandID, &item.Status, &item.ProcessorID, &item.ProcessorVersion,
		&item.ProcessingStartedAt, &item.ProcessingCompletedAt, &item.RetryCount, &item.NextRetryAfter,
		&item.OCCRetryCount, &errorsJSON, &item.InsertedAt)
	if err != nil {
		return item, err
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &item.Errors); err != nil {
			return item, err
		}
	}
	return item, nil
}

// MarkProcessed finalizes a successfully processed item (spec.md
// §4.C7: every worker's last step).
func MarkProcessed(ctx context.Context, q Querier, itemID string) error {
	_, err := q.Exec(ctx, `
		UPDATE command_queue_items SET status='processed', processing_completed_at=now() WHERE id=$1
	`, itemID)
	return err
}

// MarkOCCTimeout records that the OCC driver exhausted its retry
// budget (spec.md §4.C4's on_timeout, run as a separate DB
// transaction from the pipeline it gave up on).
func MarkOCCTimeout(ctx context.Context, q Querier, itemID string, attempts int, lastErr string, nextRetryAfter time.Time) error {
	entry, _ := json.Marshal([]queue.ErrorEntry{{Message: lastErr, InsertedAt: time.Now().UTC()}})
	_, err := q.Exec(ctx, `
		UPDATE command_queue_items
		SET status='occ_timeout', occ_retry_count = occ_retry_count + $1, next_retry_after = $2,
		    errors = $3 || errors
		WHERE id = $4
	`, attempts, nextRetryAfter, entry, itemID)
	return err
}

// MarkFailedOrDeadLetter records a structural (non-OCC) failure,
// moving to dead_letter once maxStructuralFailures is reached (spec.md
// §4.C6).
func MarkFailedOrDeadLetter(ctx context.Context, q Querier, itemID string, retryCount, maxStructuralFailures int, message string, nextRetryAfter time.Time) error {
	status := queue.StatusFailed
	if retryCount >= maxStructuralFailures {
		status = queue.StatusDeadLetter
	}
	entry, _ := json.Marshal([]queue.ErrorEntry{{Message: message, InsertedAt: time.Now().UTC()}})
	_, err := q.Exec(ctx, `
		UPDATE command_queue_items SET status=$1, next_retry_after=$2, errors = $3 || errors WHERE id=$4
	`, status, nextRetryAfter, entry, itemID)
	return err
}

// MarkDeadLetter moves an item straight to dead_letter for a
// deterministic, non-retryable failure (spec.md §7: VALIDATION,
// DEPENDENCY_DEAD, BALANCE_INVARIANT are all fatal for this command —
// retrying would just fail identically).
func MarkDeadLetter(ctx context.Context, q Querier, itemID, message string) error {
	entry, _ := json.Marshal([]queue.ErrorEntry{{Message: message, InsertedAt: time.Now().UTC()}})
	_, err := q.Exec(ctx, `
		UPDATE command_queue_items
		SET status='dead_letter', processing_completed_at=now(), errors = $1 || errors
		WHERE id = $2
	`, entry, itemID)
	return err
}

// RevertToPending puts an item back in pending with a scheduled retry
// (spec.md §4.C8 REVERT_TO_PENDING, and §4.C6 DEPENDENCY_PENDING).
func RevertToPending(ctx context.Context, q Querier, itemID string, nextRetryAfter time.Time, message string) error {
	entry, _ := json.Marshal([]queue.ErrorEntry{{Message: message, InsertedAt: time.Now().UTC()}})
	_, err := q.Exec(ctx, `
		UPDATE command_queue_items SET status='pending', next_retry_after=$1, errors = $2 || errors WHERE id=$3
	`, nextRetryAfter, entry, itemID)
	return err
}

// RecoverStuckItems forces items stuck in processing longer than
// stuckThreshold back to pending (spec.md §5's heartbeat heuristic).
// It does not attempt to distinguish a live processor_id from a dead
// one beyond the time bound — spec.md leaves "currently live" to a
// simple age check when no separate liveness channel exists.
func RecoverStuckItems(ctx context.Context, q Querier, stuckThreshold time.Duration) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE command_queue_items
		SET status='pending', next_retry_after=now()
		WHERE status='processing' AND processing_started_at < now() - $1::interval
	`, stuckThreshold)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertJournalEvent freezes a copy of the command's event_map at
// successful apply (spec.md §3).
func InsertJournalEvent(ctx context.Context, q Querier, instanceID string, eventMap []byte) (string, error) {
	var id string
	err := q.QueryRow(ctx, `INSERT INTO journal_events (instance_id, event_map) VALUES ($1,$2) RETURNING id`, instanceID, eventMap).Scan(&id)
	return id, err
}

// InsertLink appends one row of an audit-graph join table.
func InsertLink(ctx context.Context, q Querier, table, eventID, targetID string) error {
	_, err := q.Exec(ctx, "INSERT INTO "+table+" (event_id, target_id) VALUES ($1,$2)", eventID, targetID)
	return err
}

// UpsertPendingTransactionLookup keyed by (source, source_idempk,
// instance_id) (spec.md §5: "upsert semantics keyed by its primary
// key").
func UpsertPendingTransactionLookup(ctx context.Context, q Querier, l queue.PendingTransactionLookup) error {
	_, err := q.Exec(ctx, `
		INSERT INTO pending_transaction_lookup (source, source_idempk, instance_id, command_id, transaction_id, journal_event_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source, source_idempk, instance_id) DO UPDATE SET
			command_id = EXCLUDED.command_id,
			transaction_id = EXCLUDED.transaction_id,
			journal_event_id = EXCLUDED.journal_event_id
	`, l.Source, l.SourceIdempK, l.InstanceID, l.CommandID, l.TransactionID, l.JournalEventID)
	return err
}

// LookupPendingTransaction resolves an update_transaction's target by
// its create's (source, source_idempk) identity (spec.md §3's
// correlation cache).
func LookupPendingTransaction(ctx context.Context, q Querier, instanceID, source, sourceIdempK string) (queue.PendingTransactionLookup, bool, error) {
	var l queue.PendingTransactionLookup
	row := q.QueryRow(ctx, `
		SELECT source, source_idempk, instance_id, command_id, transaction_id, journal_event_id, inserted_at
		FROM pending_transaction_lookup WHERE source=$1 AND source_idempk=$2 AND instance_id=$3
	`, source, sourceIdempK, instanceID)
	err := row.Scan(&l.Source, &l.SourceIdempK, &l.InstanceID, &l.CommandID, &l.TransactionID, &l.JournalEventID, &l.InsertedAt)
	if err == pgx.ErrNoRows {
		return l, false, nil
	}
	return l, err == nil, err
}
