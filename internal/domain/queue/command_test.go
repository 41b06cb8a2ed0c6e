package queue_test

import (
	"testing"
	"time"

	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/stretchr/testify/assert"
)

func TestCommandTypeDependsOnCreate(t *testing.T) {
	assert.True(t, queue.CommandUpdateAccount.DependsOnCreate())
	assert.True(t, queue.CommandUpdateTransaction.DependsOnCreate())
	assert.False(t, queue.CommandCreateAccount.DependsOnCreate())
	assert.False(t, queue.CommandCreateTransaction.DependsOnCreate())
}

func TestIdempotencyKeyIncludesUpdateIdempK(t *testing.T) {
	c := queue.Command{InstanceID: "i1", Source: "api", SourceIdempK: "abc"}
	withoutUpdate := c.IdempotencyKey()

	c.UpdateIdempK = "def"
	withUpdate := c.IdempotencyKey()

	assert.NotEqual(t, withoutUpdate, withUpdate)
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 500 * time.Millisecond

	assert.Equal(t, base, queue.NextBackoff(0, base, max))
	assert.Equal(t, 200*time.Millisecond, queue.NextBackoff(1, base, max))
	assert.Equal(t, 400*time.Millisecond, queue.NextBackoff(2, base, max))
	assert.Equal(t, max, queue.NextBackoff(3, base, max))
	assert.Equal(t, max, queue.NextBackoff(30, base, max))
}
