package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	mierrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
)

// MailboxPoller runs one mailbox on demand.
type MailboxPoller interface {
	RunMailbox(ctx context.Context, mailbox *models.Mailbox) (*dto.RunSummary, error)
}

// ListMailboxes returns all configured mailboxes. Passwords are never serialized.
func ListMailboxes(mailboxes interfaces.MailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		result, err := mailboxes.GetMailboxes(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// AddMailbox creates or replaces a mailbox configuration
func AddMailbox(mailboxes interfaces.MailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var request dto.MailboxRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if request.Port <= 0 || request.Port > 65535 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "port must be between 1 and 65535"})
			return
		}

		mailbox := &models.Mailbox{
			Name:               request.Name,
			Host:               request.Host,
			Port:               request.Port,
			TLS:                request.TLS,
			StartTLS:           request.StartTLS,
			InsecureSkipVerify: request.InsecureSkipVerify,
			Username:           request.Username,
			Password:           request.Password,
			Folder:             request.Folder,
			Enabled:            request.Enabled == nil || *request.Enabled,
		}
		if mailbox.Folder == "" {
			mailbox.Folder = mailbox.FolderOrDefault()
		}

		if err := mailboxes.SaveMailbox(ctx, mailbox); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": "mailbox saved", "name": mailbox.Name})
	}
}

func SetMailboxEnabled(mailboxes interfaces.MailboxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		name := c.Param("name")

		var request dto.MailboxEnabledRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := mailboxes.SetEnabled(ctx, name, request.Enabled); err != nil {
			respondRepositoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "enabled": request.Enabled})
	}
}

func GetWatermark(mailboxes interfaces.MailboxRepository, states interfaces.MailboxStateRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		name := c.Param("name")

		if _, err := mailboxes.GetMailbox(ctx, name); err != nil {
			respondRepositoryError(c, err)
			return
		}
		state, err := states.GetState(ctx, name)
		if err != nil {
			respondRepositoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// ResetWatermark is the operator override. It may move the watermark backwards;
// uids that already have a ledger row are skipped as duplicates on the next run.
func ResetWatermark(mailboxes interfaces.MailboxRepository, states interfaces.MailboxStateRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		name := c.Param("name")

		var request dto.WatermarkResetRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := mailboxes.GetMailbox(ctx, name); err != nil {
			respondRepositoryError(c, err)
			return
		}

		state, err := states.Reset(ctx, name, request.LastSeenUID)
		if err != nil {
			respondRepositoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// PollMailbox runs the mailbox synchronously and returns its summary.
func PollMailbox(mailboxes interfaces.MailboxRepository, poller MailboxPoller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		name := c.Param("name")

		mailbox, err := mailboxes.GetMailbox(ctx, name)
		if err != nil {
			respondRepositoryError(c, err)
			return
		}

		summary, err := poller.RunMailbox(ctx, mailbox)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, summary)
		case errors.Is(err, repository.ErrLeaseHeld):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case mierrors.KindOf(err) == mierrors.KindConfig:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case summary != nil:
			// The run started and its partial progress was committed.
			c.JSON(http.StatusBadGateway, summary)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}

func respondRepositoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrMailboxNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrWatermarkConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if span := opentracing.SpanFromContext(c.Request.Context()); span != nil {
			tracing.TraceErr(span, err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
