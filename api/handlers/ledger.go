package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	apierrors "github.com/customeros/mailintake/api/errors"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
)

const maxListLimit = 1000

// ListLedger returns ledger rows, newest first. Query: mailbox, status, reason,
// since (RFC 3339) and limit.
func ListLedger(ledger interfaces.IngestLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		filter, validation := ledgerFilterFromQuery(c)
		if validation.HasErrors() {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "fields": validation.Fields()})
			return
		}

		entries, err := ledger.List(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func ledgerFilterFromQuery(c *gin.Context) (interfaces.IngestLogFilter, *apierrors.MultiErrors) {
	validation := apierrors.NewMultiErrors()
	filter := interfaces.IngestLogFilter{
		Mailbox: c.Query("mailbox"),
		Status:  enum.IngestStatus(c.Query("status")),
		Reason:  enum.IngestReason(c.Query("reason")),
	}

	if filter.Status != "" && !filter.Status.IsValid() {
		validation.Add("status", "must be one of processed, skipped, failed", nil)
	}
	if filter.Reason != "" && filter.Status != "" && filter.Reason.Status() != filter.Status {
		validation.Add("reason", "does not belong to status "+filter.Status.String(), nil)
	}
	if since := c.Query("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			validation.Add("since", "must be an RFC 3339 timestamp", err)
		} else {
			filter.Since = &parsed
		}
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		validation.Add("limit", err.Error(), err)
	}
	filter.Limit = limit
	return filter, validation
}

// ListRuns returns persisted run summaries, optionally for one mailbox.
func ListRuns(runs interfaces.IngestRunRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit: " + err.Error()})
			return
		}

		result, err := runs.List(ctx, c.Query("mailbox"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

var errInvalidLimit = errors.New("must be a positive integer")

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
