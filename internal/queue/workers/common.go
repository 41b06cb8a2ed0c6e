package workers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/events"
	"github.com/ledgerbank/ledger-core/internal/occ"
	"github.com/ledgerbank/ledger-core/internal/pkg/config"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/metrics"
)

// Deps bundles what every handler needs beyond the store: the OCC
// driver's tight per-attempt budget and the scheduler's coarser
// queue-level backoff, plus the journal broadcaster GET /events
// subscribers read from. Built once at wiring time
// (internal/pkg/components) and closed over by each handler
// constructor.
type Deps struct {
	OCC    occ.Config
	Queue  config.QueueConfig
	Broker *events.Broker
}

// publishJournal fans a just-committed JournalEvent out to SSE
// subscribers. Called after commit, never before — a subscriber must
// never observe an event for a transaction it cannot yet read back.
func publishJournal(deps Deps, instanceID, eventID string, eventMap []byte) {
	if deps.Broker == nil {
		return
	}
	deps.Broker.Publish(queue.JournalEvent{ID: eventID, InstanceID: instanceID, EventMap: eventMap})
}

// deadLetter marks item dead_letter for a deterministic, non-retryable
// error and records the taxonomy-appropriate metrics (spec.md §7).
func deadLetter(ctx context.Context, store *postgres.Store, cmdType string, item queue.CommandQueueItem, err error) error {
	_ = postgres.MarkDeadLetter(ctx, store.Pool(), item.ID, err.Error())
	metrics.RecordDeadLetter(cmdType)
	metrics.RecordCommandProcessed(cmdType, string(queue.StatusDeadLetter))
	return err
}

// revertToPending puts item back in pending with nextRetryAfter,
// recording the DEPENDENCY_PENDING outcome (spec.md §4.C8).
func revertToPending(ctx context.Context, store *postgres.Store, cmdType string, item queue.CommandQueueItem, nextRetryAfter time.Time, reason string) error {
	_ = postgres.RevertToPending(ctx, store.Pool(), item.ID, nextRetryAfter, reason)
	metrics.RecordCommandProcessed(cmdType, string(queue.StatusPending))
	return ErrDependencyPending
}

// finalizePipelineOutcome routes the result of occ.ProcessWithRetry
// for a worker's main pipeline to the correct terminal state, per
// spec.md §7's propagation policy. occ.ProcessWithRetry's own
// onTimeout callback already persists occ_timeout + next_retry_after
// as a separate transaction when outcome == occ.OCCTimeout, so this
// only has to handle occ.Failed (every non-STALE_ACCOUNT error the
// pipeline produced) and the success case.
func finalizePipelineOutcome(ctx context.Context, store *postgres.Store, cfg config.QueueConfig, item queue.CommandQueueItem, cmdType string, outcome occ.Outcome, err error) error {
	switch outcome {
	case occ.Processed:
		metrics.RecordCommandProcessed(cmdType, string(queue.StatusProcessed))
		return nil
	case occ.OCCTimeout:
		metrics.RecordOCCTimeout(cmdType)
		metrics.RecordCommandProcessed(cmdType, string(queue.StatusOCCTimeout))
		return err
	default: // occ.Failed
		kind := ledgererr.KindOf(err)
		switch kind {
		case ledgererr.KindValidation, ledgererr.KindBalance, ledgererr.KindDependencyDead, ledgererr.KindDuplicate:
			return deadLetter(ctx, store, cmdType, item, err)
		default:
			next := time.Now().UTC().Add(queue.NextBackoff(item.RetryCount, cfg.BaseRetryDelay, cfg.MaxRetryDelay))
			_ = postgres.MarkFailedOrDeadLetter(ctx, store.Pool(), item.ID, item.RetryCount, cfg.MaxRetries, err.Error(), next)
			metrics.RecordCommandProcessed(cmdType, string(queue.StatusFailed))
			return err
		}
	}
}

// recordJournal freezes the command's event_map into a JournalEvent and
// wires up every audit-graph link row spec.md §3 describes: the
// command's own links to the accounts/transaction it touched, and the
// frozen event's mirrored links to the same targets plus the command
// itself. Called once per successful attempt, inside the same tx the
// mutation committed in.
func recordJournal(ctx context.Context, tx pgx.Tx, cmd queue.Command, accountIDs []string, transactionID string) (string, error) {
	for _, accID := range accountIDs {
		if err := postgres.InsertLink(ctx, tx, "command_account_links", cmd.ID, accID); err != nil {
			return "", err
		}
	}
	if transactionID != "" {
		if err := postgres.InsertLink(ctx, tx, "command_transaction_links", cmd.ID, transactionID); err != nil {
			return "", err
		}
	}

	eventID, err := postgres.InsertJournalEvent(ctx, tx, cmd.InstanceID, cmd.Payload)
	if err != nil {
		return "", err
	}
	if err := postgres.InsertLink(ctx, tx, "journal_event_command_links", eventID, cmd.ID); err != nil {
		return "", err
	}
	for _, accID := range accountIDs {
		if err := postgres.InsertLink(ctx, tx, "journal_event_account_links", eventID, accID); err != nil {
			return "", err
		}
	}
	if transactionID != "" {
		if err := postgres.InsertLink(ctx, tx, "journal_event_transaction_links", eventID, transactionID); err != nil {
			return "", err
		}
	}
	return eventID, nil
}

// withTxStep runs fn against the shared per-attempt transaction txp
// points at, rolling back on error (the caller's pipeline step
// propagates that error unchanged so occ.ProcessWithRetry can classify
// it). Every worker pipeline below shares one *pgx.Tx across its
// occable_item/transaction_map/transaction/event_success steps,
// opened by the first step and committed by the last, so the whole
// attempt is the single DB transaction spec.md §4.C3/§4.C7 requires.
func withTxStep(ctx context.Context, txp *pgx.Tx, fn func(tx pgx.Tx) error) error {
	if err := fn(*txp); err != nil {
		(*txp).Rollback(ctx)
		return err
	}
	return nil
}
