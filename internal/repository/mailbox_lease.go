package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

type mailboxLeaseRepository struct {
	db *gorm.DB
}

func NewMailboxLeaseRepository(db *gorm.DB) interfaces.MailboxLeaseRepository {
	return &mailboxLeaseRepository{db: db}
}

// Acquire inserts the lease row or takes over a row whose lease has expired.
// A live lease is never re-entered, not even by the same holder.
func (r *mailboxLeaseRepository) Acquire(ctx context.Context, mailbox, holder string, maxAge time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxLeaseRepository.Acquire")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)
	span.SetTag("holder", holder)

	now := utils.Now()
	lease := models.MailboxLease{
		Mailbox:    mailbox,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(maxAge),
	}

	db := dbFromContext(ctx, r.db)
	err := db.Create(&lease).Error
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		tracing.TraceErr(span, err)
		return err
	}

	result := db.Model(&models.MailboxLease{}).
		Where("mailbox = ? AND expires_at < ?", mailbox, now).
		Updates(map[string]interface{}{
			"holder":      holder,
			"acquired_at": now,
			"expires_at":  lease.ExpiresAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLeaseHeld
	}
	span.LogKV("event", "expired lease taken over")
	return nil
}

func (r *mailboxLeaseRepository) Release(ctx context.Context, mailbox, holder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxLeaseRepository.Release")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)

	err := dbFromContext(ctx, r.db).
		Where("mailbox = ? AND holder = ?", mailbox, holder).
		Delete(&models.MailboxLease{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
