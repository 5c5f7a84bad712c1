package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

type ticketMessageAttachmentRepository struct {
	db *gorm.DB
}

func NewTicketMessageAttachmentRepository(db *gorm.DB) interfaces.TicketMessageAttachmentRepository {
	return &ticketMessageAttachmentRepository{db: db}
}

func (r *ticketMessageAttachmentRepository) Create(ctx context.Context, attachment *models.TicketMessageAttachment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageAttachmentRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if attachment == nil || attachment.TicketMessageID == "" || attachment.StoragePath == "" {
		return ErrInvalidInput
	}

	err := dbFromContext(ctx, r.db).Create(attachment).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, attachment.ID)
	return nil
}

func (r *ticketMessageAttachmentRepository) ListByTicketMessage(ctx context.Context, ticketMessageID string) ([]*models.TicketMessageAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageAttachmentRepository.ListByTicketMessage")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var attachments []*models.TicketMessageAttachment
	err := dbFromContext(ctx, r.db).
		Where("ticket_message_id = ?", ticketMessageID).
		Order("created_at, id").
		Find(&attachments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return attachments, nil
}
