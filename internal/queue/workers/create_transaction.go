package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/occ"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/metrics"
)

// NewCreateTransactionHandler builds the create_transaction handler.
// The heavy lifting — resolving addresses, validating the entry set,
// inserting the Transaction/Entry rows and applying each entry's effect
// to its account under the version predicate — lives in
// postgres.ApplyCreate (spec.md §4.C3); this handler's transaction_map
// step only shapes the wire payload into that function's input, and its
// transaction step is where a concurrent writer's STALE_ACCOUNT surfaces
// for occ.ProcessWithRetry to retry.
func NewCreateTransactionHandler(deps Deps) func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
	return func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
		var payload queue.CreateTransactionPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return deadLetter(ctx, store, string(cmd.Type), item, ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err))
		}

		var tx pgx.Tx
		var in postgres.CreateTransactionInput
		var txn ledger.Transaction

		build := func(ctx context.Context, attempt int) (*occ.Pipeline, error) {
			if attempt > 1 {
				metrics.RecordOCCRetry(string(cmd.Type))
			}
			return &occ.Pipeline{Steps: []occ.Step{
				{Name: occ.StepOccableItem, Run: func(ctx context.Context) error {
					t, err := store.BeginTx(ctx)
					if err != nil {
						return ledgererr.Wrap(ledgererr.KindInfrastructure, "BEGIN_TX", err)
					}
					tx = t
					return nil
				}},
				{Name: occ.StepIdempotency, Run: func(ctx context.Context) error {
					return nil
				}},
				{Name: occ.StepTransactionMap, Run: func(ctx context.Context) error {
					entries := make([]ledger.EntryInput, 0, len(payload.Entries))
					for _, e := range payload.Entries {
						entries = append(entries, ledger.EntryInput{
							AccountAddress: e.AccountAddress,
							Type:           e.Type,
							Value:          ledger.Money{Amount: e.Amount, Currency: e.Currency},
						})
					}
					in = postgres.CreateTransactionInput{InstanceID: cmd.InstanceID, Status: payload.Status, Entries: entries}
					return nil
				}},
				{Name: occ.StepTransaction, Run: func(ctx context.Context) error {
					return withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						result, err := postgres.ApplyCreate(ctx, tx, in)
						if err != nil {
							return err
						}
						txn = result
						return nil
					})
				}},
				{Name: occ.StepEventSuccess, Run: func(ctx context.Context) error {
					var eventID string
					if err := withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						accountIDs := make([]string, 0, len(txn.Entries))
						for _, e := range txn.Entries {
							accountIDs = append(accountIDs, e.AccountID)
						}
						id, err := recordJournal(ctx, tx, cmd, accountIDs, txn.ID)
						if err != nil {
							return err
						}
						eventID = id
						if err := postgres.UpsertPendingTransactionLookup(ctx, tx, queue.PendingTransactionLookup{
							Source:         cmd.Source,
							SourceIdempK:   cmd.SourceIdempK,
							InstanceID:     cmd.InstanceID,
							CommandID:      cmd.ID,
							TransactionID:  txn.ID,
							JournalEventID: eventID,
						}); err != nil {
							return err
						}
						if err := postgres.MarkProcessed(ctx, tx, item.ID); err != nil {
							return err
						}
						return tx.Commit(ctx)
					}); err != nil {
						return err
					}
					publishJournal(deps, cmd.InstanceID, eventID, cmd.Payload)
					return nil
				}},
			}}, nil
		}

		onTimeout := func(ctx context.Context, attempts int, lastErr error) error {
			next := time.Now().UTC().Add(queue.NextBackoff(item.RetryCount, deps.Queue.BaseRetryDelay, deps.Queue.MaxRetryDelay))
			return postgres.MarkOCCTimeout(ctx, store.Pool(), item.ID, attempts, lastErr.Error(), next)
		}

		outcome, err := occ.ProcessWithRetry(ctx, build, onTimeout, deps.OCC)
		return finalizePipelineOutcome(ctx, store, deps.Queue, item, string(cmd.Type), outcome, err)
	}
}
