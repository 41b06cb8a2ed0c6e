package occ_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerbank/ledger-core/internal/occ"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWithRetrySucceedsAfterStaleConflicts(t *testing.T) {
	attempts := 0
	build := func(ctx context.Context, attempt int) (*occ.Pipeline, error) {
		return &occ.Pipeline{Steps: []occ.Step{
			{Name: occ.StepOccableItem, Run: func(context.Context) error { return nil }},
			{Name: occ.StepTransaction, Run: func(context.Context) error {
				attempts++
				if attempts < 3 {
					return ledgererr.ErrStaleAccount
				}
				return nil
			}},
		}}, nil
	}

	outcome, err := occ.ProcessWithRetry(context.Background(), build, nil, occ.Config{
		MaxRetries:    5,
		RetryInterval: time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, occ.Processed, outcome)
	assert.Equal(t, 3, attempts)
}

func TestProcessWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	build := func(ctx context.Context, attempt int) (*occ.Pipeline, error) {
		return &occ.Pipeline{Steps: []occ.Step{
			{Name: occ.StepTransaction, Run: func(context.Context) error { return ledgererr.ErrStaleAccount }},
		}}, nil
	}

	var timedOut bool
	onTimeout := func(ctx context.Context, attempts int, lastErr error) error {
		timedOut = true
		assert.Equal(t, 3, attempts)
		return nil
	}

	outcome, err := occ.ProcessWithRetry(context.Background(), build, onTimeout, occ.Config{
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, occ.OCCTimeout, outcome)
	assert.True(t, timedOut)
}

func TestProcessWithRetryNonStaleErrorIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	build := func(ctx context.Context, attempt int) (*occ.Pipeline, error) {
		return &occ.Pipeline{Steps: []occ.Step{
			{Name: occ.StepIdempotency, Run: func(context.Context) error { return boom }},
		}}, nil
	}

	outcome, err := occ.ProcessWithRetry(context.Background(), build, nil, occ.Config{MaxRetries: 5, RetryInterval: time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, occ.Failed, outcome)
}
