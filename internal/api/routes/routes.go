package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/ledgerbank/ledger-core/internal/api/handlers"
	"github.com/ledgerbank/ledger-core/internal/api/middleware"
)

// RegisterRoutes registers every HTTP route against the container's
// dependencies: command submission and instance creation, plus the
// account/transaction/history read surface and the SSE journal feed.
func RegisterRoutes(router *gin.Engine, container handlers.HandlerDependencies) {
	router.Use(middleware.CORS(container.GetConfig()))
	router.Use(middleware.PrometheusMiddleware())

	router.POST("/instances", handlers.MakeCreateInstanceHandler(container))

	router.POST("/commands", handlers.MakeSubmitCommandHandler(container))
	router.GET("/commands/:id", handlers.MakeGetCommandHandler(container))

	router.GET("/accounts/:address", handlers.MakeGetAccountHandler(container))
	router.GET("/accounts/:address/history", handlers.MakeGetAccountHistoryHandler(container))

	router.GET("/transactions/:id", handlers.MakeGetTransactionHandler(container))

	router.GET("/events", handlers.Events(container))
	router.GET("/metrics", handlers.PrometheusMetrics)
}
