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

type mailboxStateRepository struct {
	db *gorm.DB
}

func NewMailboxStateRepository(db *gorm.DB) interfaces.MailboxStateRepository {
	return &mailboxStateRepository{db: db}
}

func (r *mailboxStateRepository) GetState(ctx context.Context, mailbox string) (*models.MailboxState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxStateRepository.GetState")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var state models.MailboxState
	err := dbFromContext(ctx, r.db).First(&state, "mailbox = ?", mailbox).Error
	if err != nil {
		if isNotFound(err) {
			return &models.MailboxState{Mailbox: mailbox}, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &state, nil
}

func (r *mailboxStateRepository) CompareAndSet(ctx context.Context, state *models.MailboxState, expectedVersion int64) (*models.MailboxState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxStateRepository.CompareAndSet")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("expected-version", expectedVersion)
	span.SetTag("last-seen-uid", state.LastSeenUID)

	now := utils.Now()
	next := &models.MailboxState{
		Mailbox:     state.Mailbox,
		LastSeenUID: state.LastSeenUID,
		UIDValidity: state.UIDValidity,
		Version:     expectedVersion + 1,
		UpdatedAt:   now,
	}

	db := dbFromContext(ctx, r.db)
	if expectedVersion == 0 {
		err := db.Create(next).Error
		if err != nil {
			if IsUniqueViolation(err) {
				return nil, ErrWatermarkConflict
			}
			tracing.TraceErr(span, err)
			return nil, err
		}
		return next, nil
	}

	result := db.Model(&models.MailboxState{}).
		Where("mailbox = ? AND version = ? AND last_seen_uid <= ?", state.Mailbox, expectedVersion, state.LastSeenUID).
		Updates(map[string]interface{}{
			"last_seen_uid": state.LastSeenUID,
			"uid_validity":  state.UIDValidity,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tracing.TraceErr(span, ErrWatermarkConflict)
		return nil, ErrWatermarkConflict
	}
	return next, nil
}

func (r *mailboxStateRepository) Reset(ctx context.Context, mailbox string, lastSeenUID uint32) (*models.MailboxState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxStateRepository.Reset")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)
	span.SetTag("last-seen-uid", lastSeenUID)

	var state models.MailboxState
	err := dbFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&state, "mailbox = ?", mailbox).Error
		if isNotFound(err) {
			state = models.MailboxState{
				Mailbox:     mailbox,
				LastSeenUID: lastSeenUID,
				Version:     1,
				UpdatedAt:   utils.Now(),
			}
			return tx.Create(&state).Error
		}
		if err != nil {
			return err
		}

		state.LastSeenUID = lastSeenUID
		state.UIDValidity = 0
		state.Version++
		state.UpdatedAt = utils.Now()
		return tx.Model(&models.MailboxState{}).
			Where("mailbox = ?", mailbox).
			Updates(map[string]interface{}{
				"last_seen_uid": state.LastSeenUID,
				"uid_validity":  0,
				"version":       state.Version,
				"updated_at":    state.UpdatedAt,
			}).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &state, nil
}
