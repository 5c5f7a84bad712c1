package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailintake/api/handlers"
	"github.com/customeros/mailintake/api/middleware"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, poller handlers.MailboxPoller, repos *repository.Repositories, gatherer prometheus.Gatherer, apikey string) {
	if poller == nil {
		panic("Poller cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", tracing.TracingEnhancer(ctx, "/status"), handlers.Status(repos.IngestRunRepository))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		mailboxes := api.Group("/mailboxes")
		{
			mailboxes.GET("", handlers.ListMailboxes(repos.MailboxRepository))
			mailboxes.POST("", handlers.AddMailbox(repos.MailboxRepository))
			mailboxes.PUT("/:name/enabled", handlers.SetMailboxEnabled(repos.MailboxRepository))
			mailboxes.GET("/:name/watermark", handlers.GetWatermark(repos.MailboxRepository, repos.MailboxStateRepository))
			mailboxes.PUT("/:name/watermark", handlers.ResetWatermark(repos.MailboxRepository, repos.MailboxStateRepository))
			mailboxes.POST("/:name/poll", handlers.PollMailbox(repos.MailboxRepository, poller))
		}

		api.GET("/ledger", handlers.ListLedger(repos.IngestLogRepository))
		api.GET("/runs", handlers.ListRuns(repos.IngestRunRepository))
	}
}
