package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/tracing"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the last run of every mailbox that was polled at least once.
func Status(runs interfaces.IngestRunRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "Status", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		latest, err := runs.LatestPerMailbox(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		mailboxes := make(map[string]interface{}, len(latest))
		for _, run := range latest {
			mailboxes[run.Mailbox] = run
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mailboxes": mailboxes})
	}
}
