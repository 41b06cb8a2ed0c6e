// Package queue owns the runtime side of command processing: the
// polling loop that claims due CommandQueueItems and dispatches them
// into a bounded worker pool, plus a periodic stuck-item recovery
// sweep. internal/domain/queue holds the data model this package
// operates on; internal/queue/workers holds the per-action handlers
// it dispatches into.
//
// The poll/claim/dispatch loop follows a consumer-group style with
// manual "commit" semantics: the claim UPDATE's processor_version
// predicate plays the role an offset commit would, applied against
// Postgres's claimable-item query instead of a partition.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/pkg/config"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/logging"
	"github.com/ledgerbank/ledger-core/internal/pkg/metrics"
)

// Handler processes one claimed CommandQueueItem end to end, including
// every terminal state transition (processed / occ_timeout / failed /
// dead_letter / reverted-to-pending) for whatever errors it hits. The
// Scheduler itself writes queue-item state only for the claim, the
// stuck-item sweep and dead-lettering an item whose command type has
// no registered handler — that keeps the error-taxonomy-to-status
// routing (spec.md §7) next to the worker logic that produces the
// errors, not duplicated in the dispatcher.
type Handler func(ctx context.Context, store *postgres.Store, cmd queue.Command, item queue.CommandQueueItem) error

// Registry maps a CommandType to the Handler that processes it — one
// handler per action, spec.md §4.C7.
type Registry map[queue.CommandType]Handler

// Scheduler is the polling loop + bounded-concurrency dispatcher
// spec.md §4.C6/§9 describes: it owns the claim query and dispatches
// into a worker pool sized by QueueConfig.WorkerPoolSize, applying
// backpressure by simply not claiming more items than the pool has
// free slots for (spec.md §9: "already-claimed items keep their claim
// until completion").
type Scheduler struct {
	store       *postgres.Store
	registry    Registry
	cfg         config.QueueConfig
	processorID string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler builds a Scheduler. processorID should be derived from
// cfg.ProcessorName plus something unique to this process (pid, host,
// replica ordinal) so concurrently-running workers claim distinct
// processor identities even though at-most-one-claimant is already
// guaranteed by the processor_version predicate.
func NewScheduler(store *postgres.Store, registry Registry, cfg config.QueueConfig, processorID string) *Scheduler {
	return &Scheduler{store: store, registry: registry, cfg: cfg, processorID: processorID}
}

// Start launches the poll loop and the recovery sweep in the
// background. It returns immediately; call Stop to shut both down.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	poolSize := s.cfg.WorkerPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	sem := make(chan struct{}, poolSize)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(runCtx, sem)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recoveryLoop(runCtx)
	}()
}

// Stop cancels the background loops and waits for in-flight dispatches
// to finish (they hold their own DB transaction, which must be allowed
// to commit or roll back cleanly rather than being killed mid-flight).
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) pollLoop(ctx context.Context, sem chan struct{}) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, sem)
		}
	}
}

// pollOnce claims at most as many items as there are free worker-pool
// slots right now, so a saturated pool simply stops claiming until a
// slot frees up (spec.md §9).
func (s *Scheduler) pollOnce(ctx context.Context, sem chan struct{}) {
	free := cap(sem) - len(sem)
	if free <= 0 {
		return
	}

	items, err := postgres.ClaimNextItems(ctx, s.store.Pool(), s.processorID, free)
	if err != nil {
		logging.Error("scheduler: claim failed", err, nil)
		return
	}
	metrics.SetQueueDepth("claimed_this_poll", float64(len(items)))

	for _, item := range items {
		item := item
		sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-sem }()
			s.dispatch(ctx, item)
		}()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, item queue.CommandQueueItem) {
	cmd, err := postgres.GetCommand(ctx, s.store.Pool(), item.CommandID)
	if err != nil {
		logging.Error("scheduler: failed to load command for claimed item", err, map[string]interface{}{"item_id": item.ID})
		return
	}

	handler, ok := s.registry[cmd.Type]
	if !ok {
		logging.Error("scheduler: no handler registered for command type", nil, map[string]interface{}{"type": string(cmd.Type)})
		_ = postgres.MarkDeadLetter(ctx, s.store.Pool(), item.ID, "no handler registered for command type "+string(cmd.Type))
		metrics.RecordDeadLetter(string(cmd.Type))
		return
	}

	if err := handler(ctx, s.store, cmd, item); err != nil {
		logging.Warn("scheduler: handler returned error", map[string]interface{}{
			"item_id": item.ID, "type": string(cmd.Type), "kind": string(ledgererr.KindOf(err)), "error": err.Error(),
		})
	}
}

// recoveryLoop periodically forces items stuck in processing back to
// pending (spec.md §5's heartbeat heuristic). It runs twice per
// stuck_threshold so a crashed worker's items are recovered promptly
// without making every tick pay for a full table scan.
func (s *Scheduler) recoveryLoop(ctx context.Context) {
	threshold := s.cfg.StuckThreshold
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	interval := threshold / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := postgres.RecoverStuckItems(ctx, s.store.Pool(), threshold)
			if err != nil {
				logging.Error("scheduler: stuck-item recovery failed", err, nil)
				continue
			}
			if n > 0 {
				logging.Warn("scheduler: recovered stuck items", map[string]interface{}{"count": n})
			}
		}
	}
}
