package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledgerbank/ledger-core/internal/domain/queue"
	"github.com/ledgerbank/ledger-core/internal/infrastructure/database/postgres"
	"github.com/ledgerbank/ledger-core/internal/pkg/apierr"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/metrics"
	"github.com/ledgerbank/ledger-core/internal/pkg/validation"
)

// submitCommandRequest is the wire envelope POST /commands accepts —
// the caller's own idempotency identity plus the tagged payload for
// cmd.Type (spec.md §3, §4.C9).
type submitCommandRequest struct {
	InstanceAddress string          `json:"instance_address" binding:"required"`
	Type            queue.CommandType `json:"type" binding:"required"`
	Source          string          `json:"source" binding:"required"`
	SourceIdempK    string          `json:"source_idempk" binding:"required"`
	UpdateIdempK    string          `json:"update_idempk,omitempty"`
	Payload         json.RawMessage `json:"payload" binding:"required"`
}

// MakeSubmitCommandHandler builds POST /commands. By default it
// publishes to Kafka and answers 202 with the command id the caller
// can poll at GET /commands/:id (async, at-least-once intake). With
// ?sync=true it instead inserts the command and drives it straight
// through its registry Handler in this request's goroutine, answering
// with the terminal outcome once the handler returns instead of
// making the caller poll.
func MakeSubmitCommandHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitCommandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			resp := apierr.NewValidation(err.Error())
			c.JSON(resp.Status, resp)
			return
		}

		// VALIDATION failures are rejected here, before anything is
		// durable: the command is never inserted and the queue never
		// sees it, so it can never be retried (spec.md §7).
		if err := validation.ValidateAddress(req.InstanceAddress); err != nil {
			resp := apierr.FromLedgerErr(ledgererr.Field(ledgererr.KindValidation, "INVALID_ADDRESS", "instance_address", err.Error()))
			c.JSON(resp.Status, resp)
			return
		}
		if err := queue.ValidatePayload(req.Type, req.Source, req.SourceIdempK, req.UpdateIdempK, req.Payload); err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}

		store := deps.GetStore()
		inst, err := postgres.ResolveInstanceByAddress(c.Request.Context(), store.Pool(), req.InstanceAddress)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}

		cmd := queue.Command{
			ID:              uuid.NewString(),
			InstanceID:      inst.ID,
			Type:            req.Type,
			Source:          req.Source,
			SourceIdempK:    req.SourceIdempK,
			UpdateIdempK:    req.UpdateIdempK,
			InstanceAddress: req.InstanceAddress,
			Payload:         req.Payload,
		}

		if c.Query("sync") == "true" {
			submitSync(c, deps, cmd)
			return
		}

		submitAsync(c, deps, cmd)
	}
}

// createInstanceRequest is the body POST /instances accepts. Instance
// provisioning has no balance invariant to protect, so it bypasses the
// command queue entirely (spec.md §3).
type createInstanceRequest struct {
	Address     string `json:"address" binding:"required"`
	Description string `json:"description,omitempty"`
}

// MakeCreateInstanceHandler builds POST /instances: a direct insert,
// not a queued command, since an Instance carries no balance and
// nothing here can ever race on a version predicate.
func MakeCreateInstanceHandler(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createInstanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			resp := apierr.NewValidation(err.Error())
			c.JSON(resp.Status, resp)
			return
		}
		if err := validation.ValidateAddress(req.Address); err != nil {
			resp := apierr.FromLedgerErr(ledgererr.Field(ledgererr.KindValidation, "INVALID_ADDRESS", "address", err.Error()))
			c.JSON(resp.Status, resp)
			return
		}

		store := deps.GetStore()
		inst, err := postgres.InsertInstance(c.Request.Context(), store.Pool(), req.Address, req.Description)
		if err != nil {
			resp := apierr.FromLedgerErr(err)
			c.JSON(resp.Status, resp)
			return
		}
		c.JSON(http.StatusCreated, inst)
	}
}

func submitAsync(c *gin.Context, deps HandlerDependencies, cmd queue.Command) {
	if err := deps.GetProducer().PublishCommand(cmd); err != nil {
		resp := apierr.FromLedgerErr(ledgererr.Wrap(ledgererr.KindInfrastructure, "PUBLISH_FAILED", err))
		c.JSON(resp.Status, resp)
		return
	}
	metrics.RecordCommandSubmitted(string(cmd.Type))
	c.JSON(http.StatusAccepted, gin.H{"command_id": cmd.ID, "status": "accepted"})
}

func submitSync(c *gin.Context, deps HandlerDependencies, cmd queue.Command) {
	ctx := c.Request.Context()
	store := deps.GetStore()

	handler, ok := deps.GetRegistry()[cmd.Type]
	if !ok {
		resp := apierr.NewValidation("unknown command type")
		c.JSON(resp.Status, resp)
		return
	}

	inserted, item, err := postgres.InsertCommand(ctx, store.Pool(), cmd)
	if err != nil {
		resp := apierr.FromLedgerErr(err)
		c.JSON(resp.Status, resp)
		return
	}
	metrics.RecordCommandSubmitted(string(cmd.Type))

	runErr := handler(ctx, store, inserted, item)

	final, getErr := postgres.GetQueueItem(ctx, store.Pool(), item.ID)
	if getErr != nil {
		resp := apierr.NewInternal()
		c.JSON(resp.Status, resp)
		return
	}

	if runErr != nil {
		resp := apierr.FromLedgerErr(runErr)
		c.JSON(resp.Status, gin.H{"command_id": inserted.ID, "status": string(final.Status), "error": resp})
		return
	}

	c.JSON(http.StatusOK, gin.H{"command_id": inserted.ID, "status": string(final.Status)})
}
