package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/pkg/apierr"
)

// MakeGetCommandHandler exposes a submitted Command and its queue
// item's lifecycle state, the resource an async POST /commands caller
// polls until the command reaches a terminal status (spec.md §5).
func MakeGetCommandHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		store := deps.GetStore()
		id := c.Param("id")

		cmd, err := postgres.GetCommand(ctx, store.Pool(), id)
		if err != nil {
			resp := apierr.NewNotFound("command")
			c.JSON(resp.Status, resp)
			return
		}

		item, err := postgres.GetQueueItemByCommandID(ctx, store.Pool(), cmd.ID)
		if err != nil {
			resp := apierr.NewNotFound("command queue item")
			c.JSON(resp.Status, resp)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"command":    cmd,
			"queue_item": item,
		})
	}
}

// MakeGetAccountHandler exposes an account's current balance state by
// address (spec.md §5 audit-graph read surface).
func MakeGetAccountHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		store := deps.GetStore()
		instanceAddress := c.Query("instance")
		address := c.Param("address")

		inst, err := postgres.ResolveInstanceByAddress(ctx, store.Pool(), instanceAddress)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}

		acc, err := postgres.GetAccountByAddress(ctx, store.Pool(), inst.ID, address)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}
		c.JSON(http.StatusOK, acc)
	}
}

// MakeGetAccountHistoryHandler replays an account's balance_history
// rows (spec.md §8 property 5: history replays to the current state).
func MakeGetAccountHistoryHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		store := deps.GetStore()
		instanceAddress := c.Query("instance")
		address := c.Param("address")

		inst, err := postgres.ResolveInstanceByAddress(ctx, store.Pool(), instanceAddress)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}
		acc, err := postgres.GetAccountByAddress(ctx, store.Pool(), inst.ID, address)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}

		history, err := postgres.ReplayBalanceHistory(ctx, store.Pool(), acc.ID)
		if err != nil {
			resp := apierr.NewInternal()
			c.JSON(resp.Status, resp)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": acc.ID, "history": history})
	}
}

// MakeGetTransactionHandler exposes a transaction and its entries by
// id.
func MakeGetTransactionHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		store := deps.GetStore()
		id := c.Param("id")

		txn, err := postgres.GetTransaction(ctx, store.Pool(), id)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}
		c.JSON(http.StatusOK, txn)
	}
}
