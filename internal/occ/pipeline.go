// Package occ implements a generic optimistic-concurrency retry
// driver: a named-step pipeline that re-reads state, re-validates, and
// re-attempts a single version-predicate UPDATE until it either
// commits, the item hits its retry ceiling (occ_timeout), or a step
// fails outright (failed). Bounded attempts with a give-up point, and
// never advancing past a step until it truly succeeds, are the same
// discipline a bounded-retry producer and an at-least-once consumer
// loop both lean on.
package occ

import "context"

// Step names are canonical across every command type (spec.md §9 open
// question, resolved literally): a pipeline always resolves the
// occable item, checks idempotency, maps the transaction, attempts the
// version-predicate update, and records the outcome.
const (
	StepOccableItem     = "occable_item"
	StepIdempotency     = "idempotency"
	StepTransactionMap  = "transaction_map"
	StepTransaction     = "transaction"
	StepEventSuccess    = "event_success"
	StepEventFailure    = "event_failure"
)

// Step is one named stage of a pipeline. Run is re-invoked from
// scratch on every retry attempt, so it must not assume state left
// over from a previous, aborted attempt.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pipeline is the ordered list of steps a single attempt executes.
// StepTransaction is the one step PostgreSQL's version-predicate
// UPDATE lives in, and the one step ProcessWithRetry watches for
// ErrStaleAccount.
type Pipeline struct {
	Steps []Step
}

// Builder constructs a fresh Pipeline for one attempt. It is called
// once per attempt (not once per item) because occable_item and
// transaction_map must re-read current account/version state after a
// STALE_ACCOUNT conflict — replaying a stale pipeline would just
// conflict again.
type Builder func(ctx context.Context, attempt int) (*Pipeline, error)

// run executes every step in order, stopping at the first error. It
// returns the name of the step that failed (or "" on success) so the
// caller can decide whether that failure is retryable.
func (p *Pipeline) run(ctx context.Context) (failedStep string, err error) {
	for _, step := range p.Steps {
		if err := step.Run(ctx); err != nil {
			return step.Name, err
		}
	}
	return "", nil
}
