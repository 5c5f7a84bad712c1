package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

type ticketMessageRepository struct {
	db *gorm.DB
}

func NewTicketMessageRepository(db *gorm.DB) interfaces.TicketMessageRepository {
	return &ticketMessageRepository{db: db}
}

func (r *ticketMessageRepository) Create(ctx context.Context, message *models.TicketMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if message == nil || message.TicketID == "" {
		return ErrInvalidInput
	}

	// attachment rows are written by their own repository
	err := dbFromContext(ctx, r.db).Omit("Attachments").Create(message).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, message.ID)
	return nil
}

func (r *ticketMessageRepository) GetByID(ctx context.Context, id string) (*models.TicketMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var message models.TicketMessage
	err := dbFromContext(ctx, r.db).Preload("Attachments").First(&message, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *ticketMessageRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.ExistsByMessageID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if messageID == "" {
		return false, nil
	}

	var count int64
	err := dbFromContext(ctx, r.db).Model(&models.TicketMessage{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *ticketMessageRepository) ExistsByMailboxUID(ctx context.Context, mailbox string, uid uint32) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.ExistsByMailboxUID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := dbFromContext(ctx, r.db).Model(&models.TicketMessage{}).
		Where("mailbox = ? AND uid = ?", mailbox, uid).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *ticketMessageRepository) TicketIDsByMessageIDs(ctx context.Context, messageIDs []string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.TicketIDsByMessageIDs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("message-ids", len(messageIDs))

	if len(messageIDs) == 0 {
		return nil, nil
	}

	var ticketIDs []string
	err := dbFromContext(ctx, r.db).Model(&models.TicketMessage{}).
		Distinct("ticket_id").
		Where("message_id IN ?", messageIDs).
		Pluck("ticket_id", &ticketIDs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ticketIDs, nil
}
