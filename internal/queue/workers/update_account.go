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

// NewUpdateAccountHandler builds the update_account handler. An
// account's address is client-assigned at creation and never changes,
// so — unlike update_transaction — this handler resolves its target
// directly by address rather than through PendingTransactionLookup; it
// still goes through ResolveDependency first because the update may
// have been submitted before its create_account has finished processing
// (spec.md §4.C8, CommandType.DependsOnCreate).
func NewUpdateAccountHandler(deps Deps) func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
	return func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
		var payload queue.UpdateAccountPayload
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

		var tx pgx.Tx
		var acc ledger.Account

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
					return withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						loaded, err := postgres.GetAccountByAddress(ctx, tx, cmd.InstanceID, payload.AccountAddress)
						if err != nil {
							return err
						}
						acc = loaded
						if payload.Description != nil {
							acc.Description = *payload.Description
						}
						if payload.Context != nil {
							acc.Context = *payload.Context
						}
						return nil
					})
				}},
				{Name: occ.StepTransaction, Run: func(ctx context.Context) error {
					return withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						return postgres.UpdateAccountFields(ctx, tx, acc.ID, acc.Description, acc.Context)
					})
				}},
				{Name: occ.StepEventSuccess, Run: func(ctx context.Context) error {
					var eventID string
					if err := withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						id, err := recordJournal(ctx, tx, cmd, []string{acc.ID}, "")
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
