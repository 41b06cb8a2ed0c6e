package testenv

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
)

// UniqueAddress returns an address unique to this test run, so
// parallel tests sharing one container never collide on the
// UNIQUE(instance_id, address) / UNIQUE(address) constraints.
func UniqueAddress(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

// CreateInstance provisions a fresh Instance directly (spec.md §3:
// instance creation carries no balance invariant and bypasses the
// command queue the same way MakeCreateInstanceHandler does).
func (h *Harness) CreateInstance(t *testing.T, address string) ledger.Instance {
	t.Helper()
	inst, err := postgres.InsertInstance(context.Background(), h.Store.Pool(), address, "")
	require.NoError(t, err)
	return inst
}

// Submit inserts a Command and drives it through its registered
// Handler once, synchronously — the same path submitSync takes for
// HTTP callers with ?sync=true. Returns the inserted Command and the
// handler's error (nil on success).
func (h *Harness) Submit(t *testing.T, cmd queue.Command) (queue.Command, error) {
	t.Helper()
	ctx := context.Background()

	handler, ok := h.Registry[cmd.Type]
	require.True(t, ok, "no handler registered for %s", cmd.Type)

	inserted, item, err := postgres.InsertCommand(ctx, h.Store.Pool(), cmd)
	if err != nil {
		return inserted, err
	}
	return inserted, handler(ctx, h.Store, inserted, item)
}

// SubmitAsync inserts a Command and leaves it pending for the
// Harness's background Scheduler to claim and dispatch, the path a
// Kafka-delivered command takes once it lands in command_queue_items.
func (h *Harness) SubmitAsync(t *testing.T, cmd queue.Command) queue.Command {
	t.Helper()
	inserted, _, err := postgres.InsertCommand(context.Background(), h.Store.Pool(), cmd)
	require.NoError(t, err)
	return inserted
}

// InsertPending inserts a Command without driving it through its
// handler, for tests that need to control exactly when a dependency
// (spec.md §4.C8) gets resolved rather than leaving that to the
// background Scheduler or a single Submit call.
func (h *Harness) InsertPending(t *testing.T, cmd queue.Command) (queue.Command, queue.CommandQueueItem) {
	t.Helper()
	inserted, item, err := postgres.InsertCommand(context.Background(), h.Store.Pool(), cmd)
	require.NoError(t, err)
	return inserted, item
}

// Process drives one already-inserted Command through its registered
// handler for the CommandQueueItem state it currently holds — the
// half of Submit a test needs when it has to re-fetch the item's
// state (via QueueItem) between attempts instead of letting Submit
// insert and process in one call.
func (h *Harness) Process(t *testing.T, cmd queue.Command, item queue.CommandQueueItem) error {
	t.Helper()
	handler, ok := h.Registry[cmd.Type]
	require.True(t, ok, "no handler registered for %s", cmd.Type)
	return handler(context.Background(), h.Store, cmd, item)
}

// QueueItem reloads a Command's CommandQueueItem by command id, for
// tests that need the freshest retry_count/next_retry_after between
// manual Process attempts.
func (h *Harness) QueueItem(t *testing.T, commandID string) queue.CommandQueueItem {
	t.Helper()
	item, err := lookupQueueItemByCommand(h.Store, commandID)
	require.NoError(t, err)
	return item
}

// WaitForStatus polls the command's CommandQueueItem until it reaches
// want or timeout elapses, for assertions against commands dispatched
// via SubmitAsync (spec.md §5's scheduler is asynchronous by design).
func (h *Harness) WaitForStatus(t *testing.T, commandID string, want queue.ItemStatus, timeout time.Duration) queue.CommandQueueItem {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last queue.CommandQueueItem
	for time.Now().Before(deadline) {
		item, err := lookupQueueItemByCommand(h.Store, commandID)
		require.NoError(t, err)
		last = item
		if item.Status == want {
			return item
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("command %s did not reach status %s within %s (last status: %s, errors: %v)",
		commandID, want, timeout, last.Status, last.Errors)
	return last
}

func lookupQueueItemByCommand(store *postgres.Store, commandID string) (queue.CommandQueueItem, error) {
	var item queue.CommandQueueItem
	var errorsJSON []byte
	row := store.Pool().QueryRow(context.Background(), `
		SELECT id, command_id, status, processor_id, processor_version, processing_started_at,
			processing_completed_at, retry_count, next_retry_after, occ_retry_count, errors, inserted_at
		FROM command_queue_items WHERE command_id = $1
	`, commandID)
	err := row.Scan(&item.ID, &item.CommandID, &item.Status, &item.ProcessorID, &item.ProcessorVersion,
		&item.ProcessingStartedAt, &item.ProcessingCompletedAt, &item.RetryCount, &item.NextRetryAfter,
		&item.OCCRetryCount, &errorsJSON, &item.InsertedAt)
	if err != nil {
		return item, err
	}
	if len(errorsJSON) > 0 {
		_ = json.Unmarshal(errorsJSON, &item.Errors)
	}
	return item, nil
}

// GetAccount reloads an account by address for post-condition
// assertions.
func (h *Harness) GetAccount(t *testing.T, instanceID, address string) ledger.Account {
	t.Helper()
	acc, err := postgres.GetAccountByAddress(context.Background(), h.Store.Pool(), instanceID, address)
	require.NoError(t, err)
	return acc
}

// TransactionIDFor resolves the system-generated transaction id a
// create_transaction command produced, the same correlation lookup an
// update_transaction command's own (source, source_idempk) performs.
func (h *Harness) TransactionIDFor(t *testing.T, instanceID, source, sourceIdempK string) string {
	t.Helper()
	lookup, found, err := postgres.LookupPendingTransaction(context.Background(), h.Store.Pool(), instanceID, source, sourceIdempK)
	require.NoError(t, err)
	require.True(t, found, "no pending transaction lookup row for (%s, %s, %s)", instanceID, source, sourceIdempK)
	return lookup.TransactionID
}

// GetTransaction reloads a transaction with its entries for
// post-condition assertions.
func (h *Harness) GetTransaction(t *testing.T, transactionID string) ledger.Transaction {
	t.Helper()
	txn, err := postgres.GetTransaction(context.Background(), h.Store.Pool(), transactionID)
	require.NoError(t, err)
	return txn
}

// MustMarshal is a small convenience for building command payloads
// inline in test tables.
func MustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
