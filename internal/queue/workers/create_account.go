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

// NewCreateAccountHandler builds the create_account handler: a single
// attempt almost always suffices (there is no existing account version
// to conflict on), but it still rides the generic five-step pipeline so
// every command type shares one retry/terminal-state driver (spec.md
// §9 open question, resolved literally).
func NewCreateAccountHandler(deps Deps) func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
	return func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error {
		var payload queue.CreateAccountPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return deadLetter(ctx, store, string(cmd.Type), item, ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err))
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
					// The (instance_id, source, source_idempk) unique
					// constraint already rejected a duplicate submission
					// at InsertCommand time; nothing left to check here.
					return nil
				}},
				{Name: occ.StepTransactionMap, Run: func(ctx context.Context) error {
					acc = ledger.NewAccount(cmd.InstanceID, payload.Address, payload.Name, payload.Type,
						payload.Currency, payload.NormalBalance, payload.AllowedNegative, payload.Description, payload.Context)
					return nil
				}},
				{Name: occ.StepTransaction, Run: func(ctx context.Context) error {
					return withTxStep(ctx, &tx, func(tx pgx.Tx) error {
						inserted, err := postgres.InsertAccount(ctx, tx, acc)
						if err != nil {
							return err
						}
						acc = inserted
						return nil
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
