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

// NewUpdateTransactionHandler builds the update_transaction handler.
// Resolution happens in two stages: ResolveDependency confirms the
// create_transaction counterpart has processed (spec.md §4.C8), then
// LookupPendingTransaction turns this command's own (source,
// source_idempk) into the system-generated transaction id the caller
// never sees directly (spec.md §3's correlation cache).
func NewUpdateTransactionHandler(deps Deps) func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
	return func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
		var payload queue.UpdateTransactionPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return deadLetter(ctx, store, string(cmd.Type), item, ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err))
		}

		res, err := ResolveDependency(ctx, store, cmd.InstanceID, cmd.Source, cmd.SourceIdempK, deps.Queue)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case DependencyDead:
			return deadLetter(ctx, store, string(cmd.Type), item, dependencyError(res))
		case DependencyRevertToPending:
			return revertToPending(ctx, store, string(cmd.Type), item, res.NextRetryAfter, res.Reason)
		}

		lookup, found, err := postgres.LookupPendingTransaction(ctx, store.Pool(), cmd.InstanceID, cmd.Source, cmd.SourceIdempK)
		if err != nil {
			return err
		}
		if !found {
			// The create processed (Ready) but its lookup row is missing —
			// a data-integrity inconsistency, not a transient dependency
			// state. Treat it as INFRASTRUCTURE so it gets retried rather
			// than permanently dead-lettered in case of a replication lag
			// between the two reads.
			retryErr := ledgererr.New(ledgererr.KindInfrastructure, "LOOKUP_MISSING", "pending transaction lookup not yet visible for a processed create")
			next := time.Now().UTC().Add(queue.NextBackoff(item.RetryCount, deps.Queue.BaseRetryDelay, deps.Queue.MaxRetryDelay))
			_ = postgres.MarkFailedOrDeadLetter(ctx, store.Pool(), item.ID, item.RetryCount, deps.Queue.MaxRetries, retryErr.Error(), next)
			metrics.RecordCommandProcessed(string(cmd.Type), string(queue.StatusFailed))
			return retryErr
		}

		var tx pgx.Tx
		var in postgres.UpdateTransactionInput
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
					in = postgres.UpdateTransactionInput{TransactionID: lookup.TransactionID, NewStatus: payload.NewStatus, Entries: entries}
					return nil
				}},
				{Name: occ.StepTransaction, Run: func(ctx context.Context) error {
					return withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						result, err := postgres.ApplyUpdate(ctx, tx, in)
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
