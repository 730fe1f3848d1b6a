package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/handler"
)

// SetupRoutes registers all endpoints.
func SetupRoutes(
	router *gin.Engine,
	webhooks *handler.WebhookHandler,
	runs *handler.RunsHandler,
	health *handler.HealthHandler,
) {
	router.GET("/health", health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/coupons", webhooks.HandleCoupons)

	router.GET("/runs", runs.ListRuns)
	router.GET("/runs/:id", runs.GetRun)
	router.GET("/stats/sources", runs.SourceStats)
}
