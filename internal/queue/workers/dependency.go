// Package workers implements the per-action command handlers
// (create_account, update_account, create_transaction,
// update_transaction), each composing a single occ.Pipeline over one
// shared Postgres transaction per attempt, plus the dependency
// resolution every update_* handler needs before it may touch its
// target: look up the create_* command's own queue item first, and
// branch on what's found.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/pkg/config"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// DependencyOutcome classifies what dependency resolution found for an
// update_* command's create_* counterpart (spec.md §4.C8).
type DependencyOutcome int

const (
	// DependencyReady means the create_* command is processed; the
	// update may proceed.
	DependencyReady DependencyOutcome = iota
	// DependencyRevertToPending means the create_* command exists but
	// hasn't finished yet; the update should return to pending with a
	// retry scheduled after the create is expected to have progressed.
	DependencyRevertToPending
	// DependencyDead means the create_* command does not exist, or is
	// itself dead_letter; the update can never succeed.
	DependencyDead
)

// DependencyResolution is what ResolveDependency reports back to a
// caller that needs both the classification and, for the ready case,
// the resolved create command id (e.g. to look up its created
// account/transaction).
type DependencyResolution struct {
	Outcome          DependencyOutcome
	CreateCommandID  string
	CreateItemStatus queue.ItemStatus
	NextRetryAfter   time.Time // only meaningful when Outcome == DependencyRevertToPending
	Reason           string
}

// ResolveDependency implements spec.md §4.C8's table exactly: locate
// the create_* command for (instanceID, source, sourceIdempK) and
// classify what was found. The ordering guarantee this enforces is
// causal, not temporal — an update must never observe or modify a
// transaction that does not yet durably exist.
func ResolveDependency(ctx context.Context, store *postgres.Store, instanceID, source, sourceIdempK string, cfg config.QueueConfig) (DependencyResolution, error) {
	item, found, err := postgres.FindCreateQueueItem(ctx, store.Pool(), instanceID, source, sourceIdempK)
	if err != nil {
		return DependencyResolution{}, err
	}
	if !found {
		return DependencyResolution{
			Outcome: DependencyDead,
			Reason:  "no create command found for this source_idempk",
		}, nil
	}

	switch item.Status {
	case queue.StatusProcessed:
		return DependencyResolution{
			Outcome:          DependencyReady,
			CreateCommandID:  item.CommandID,
			CreateItemStatus: item.Status,
		}, nil
	case queue.StatusDeadLetter:
		return DependencyResolution{
			Outcome:          DependencyDead,
			CreateCommandID:  item.CommandID,
			CreateItemStatus: item.Status,
			Reason:           "create command was dead-lettered and cannot recover",
		}, nil
	default:
		// pending, processing, occ_timeout, failed: the create hasn't
		// landed yet. Align this update's next attempt to just after
		// the create's own next scheduled attempt.
		base := item.NextRetryAfter
		if base == nil {
			now := time.Now().UTC()
			base = &now
		}
		next := base.Add(cfg.BaseRetryDelay)
		return DependencyResolution{
			Outcome:          DependencyRevertToPending,
			CreateCommandID:  item.CommandID,
			CreateItemStatus: item.Status,
			NextRetryAfter:   next,
			Reason:           fmt.Sprintf("create command is still %s", item.Status),
		}, nil
	}
}

// dependencyError turns a dead classification into the taxonomy error
// a handler returns when it cannot proceed at all.
func dependencyError(res DependencyResolution) error {
	return ledgererr.New(ledgererr.KindDependencyDead, "DEPENDENCY_DEAD", res.Reason)
}

// ErrDependencyPending is returned, unwrapped, when an update must be
// reverted to pending rather than dead-lettered; the resolution's
// reason is recorded in the queue item's errors, not in the error.
var ErrDependencyPending = ledgererr.New(ledgererr.KindDependencyPend, "DEPENDENCY_PENDING", "create command has not processed yet")
