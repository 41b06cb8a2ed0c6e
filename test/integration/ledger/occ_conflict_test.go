// Fires N goroutines at the same account concurrently and asserts the
// converged balance reflects every writer exactly once.
package ledger_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/test/integration/testenv"
)

func TestConcurrentCreateTransaction_SameAccount_NoLostUpdates(t *testing.T) {
	h := testenv.New(t)
	inst := h.CreateInstance(t, testenv.UniqueAddress("acme"))

	cashAddr := testenv.UniqueAddress("cash_main")
	createTestAccount(t, h, inst.ID, cashAddr, ledger.AccountAsset)

	const n = 20
	const amount = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	var occRetries int
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			revAddr := testenv.UniqueAddress("rev_concurrent")
			createTestAccount(t, h, inst.ID, revAddr, ledger.AccountRevenue)

			payload := queue.CreateTransactionPayload{
				Status: ledger.StatusPosted,
				Entries: []queue.EntryInputPayload{
					{AccountAddress: cashAddr, Type: ledger.EntryDebit, Amount: amount, Currency: "USD"},
					{AccountAddress: revAddr, Type: ledger.EntryCredit, Amount: amount, Currency: "USD"},
				},
			}
			cmd := queue.Command{
				ID: uuid.NewString(), InstanceID: inst.ID, Type: queue.CommandCreateTransaction,
				Source: "test-suite", SourceIdempK: uuid.NewString(), Payload: testenv.MustMarshal(t, payload),
			}
			_, err := h.Submit(t, cmd)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			item := h.QueueItem(t, cmd.ID)
			occRetries += item.OCCRetryCount
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs, "every concurrent writer to the same account must eventually succeed through OCC retry")

	cash := h.GetAccount(t, inst.ID, cashAddr)
	assert.Equal(t, int64(n*amount), cash.Posted.Amount, "no writer's update may be silently overwritten by another's stale version")
	t.Logf("total occ retries observed across %d concurrent writers: %d", n, occRetries)
}
