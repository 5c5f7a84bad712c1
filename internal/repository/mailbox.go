package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) interfaces.MailboxRepository {
	return &mailboxRepository{db: db}
}

func (r *mailboxRepository) GetMailboxes(ctx context.Context) ([]*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetMailboxes")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var mailboxes []*models.Mailbox
	result := dbFromContext(ctx, r.db).Order("name").Find(&mailboxes)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	return mailboxes, nil
}

func (r *mailboxRepository) GetEnabledMailboxes(ctx context.Context) ([]*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetEnabledMailboxes")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var mailboxes []*models.Mailbox
	result := dbFromContext(ctx, r.db).Where("enabled = ?", true).Order("name").Find(&mailboxes)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	return mailboxes, nil
}

func (r *mailboxRepository) GetMailbox(ctx context.Context, name string) (*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetMailbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag(tracing.SpanTagMailbox, name)

	var mailbox models.Mailbox
	err := dbFromContext(ctx, r.db).First(&mailbox, "name = ?", name).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMailboxNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &mailbox, nil
}

func (r *mailboxRepository) SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.SaveMailbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if mailbox == nil || mailbox.Name == "" {
		return ErrInvalidInput
	}
	mailbox.UpdatedAt = utils.Now()
	if mailbox.CreatedAt.IsZero() {
		mailbox.CreatedAt = mailbox.UpdatedAt
	}

	err := dbFromContext(ctx, r.db).Save(mailbox).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *mailboxRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.SetEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag(tracing.SpanTagMailbox, name)

	result := dbFromContext(ctx, r.db).Model(&models.Mailbox{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": utils.Now()})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMailboxNotFound
	}
	return nil
}
