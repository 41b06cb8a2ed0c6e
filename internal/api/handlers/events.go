package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
)

// Events streams journal events as they are published, one SSE
// "journal" event per committed command: subscribe, defer the
// unsubscribe, and relay the broker's channel through c.Stream.
func Events(deps HandlerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		broker := deps.GetWorkerDeps().Broker
		if broker == nil {
			c.Status(501)
			return
		}
		ch := broker.Subscribe()
		defer broker.Unsubscribe(ch)

		c.Stream(func(w io.Writer) bool {
			if evt, ok := <-ch; ok {
				c.SSEvent("journal", evt)
				return true
			}
			return false
		})
	}
}
