package occ

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// Outcome is the terminal result ProcessWithRetry reports back to the
// scheduler (spec.md §5 CommandQueueItem.Status transitions).
type Outcome string

const (
	Processed Outcome = "processed"
	OCCTimeout Outcome = "occ_timeout"
	Failed     Outcome = "failed"
)

// Config bounds a single item's in-process retry budget. This is
// deliberately distinct from the scheduler's poll-level backoff
// (internal/domain/queue.NextBackoff): MaxRetries/RetryInterval here
// govern how many times ProcessWithRetry spins before handing the item
// back to the scheduler as occ_timeout, not how long the scheduler
// waits before picking the item up again.
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// delay implements spec.md §4.C4's linear backoff:
// delay(attempt) = (max_retries - attempt + 1) * retry_interval.
// The first retry waits the longest; each subsequent attempt waits a
// little less, so a contended account doesn't get hammered at a flat
// rate while also not stalling the last attempt unnecessarily.
func delay(attempt, maxRetries int, interval time.Duration) time.Duration {
	remaining := maxRetries - attempt + 1
	if remaining < 1 {
		remaining = 1
	}
	return time.Duration(remaining) * interval
}

// TimeoutHandler is invoked once ProcessWithRetry gives up after
// exhausting MaxRetries on STALE_ACCOUNT conflicts. Implementations
// decide whether the item goes back to the scheduler for another
// round (async path) or whether to surface NO_SAVE_ON_ERROR to a
// synchronous caller without persisting anything (spec.md §7's
// synchronous no-save requirement).
type TimeoutHandler func(ctx context.Context, attempts int, lastErr error) error

// ProcessWithRetry drives one command queue item through its
// pipeline. build is called fresh for every attempt; any error from
// step StepTransaction with ledgererr.KindStaleAccount is treated as a
// retryable OCC conflict, everything else (including errors from any
// other step) is terminal and reported as Failed.
func ProcessWithRetry(ctx context.Context, build Builder, onTimeout TimeoutHandler, cfg Config) (Outcome, error) {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		pipeline, err := build(ctx, attempt)
		if err != nil {
			return Failed, err
		}

		failedStep, err := pipeline.run(ctx)
		if err == nil {
			return Processed, nil
		}

		lastErr = err
		if failedStep != StepTransaction || !ledgererr.Is(err, ledgererr.KindStaleAccount) {
			return Failed, err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return Failed, ctx.Err()
		case <-time.After(delay(attempt, cfg.MaxRetries, cfg.RetryInterval)):
		}
	}

	if onTimeout != nil {
		if err := onTimeout(ctx, cfg.MaxRetries, lastErr); err != nil {
			return Failed, errors.Join(ledgererr.Wrap(ledgererr.KindOCCTimeout, "OCC_TIMEOUT", lastErr), err)
		}
	}
	return OCCTimeout, lastErr
}
