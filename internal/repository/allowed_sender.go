package repository

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

type allowedSenderRepository struct {
	db *gorm.DB
}

func NewAllowedSenderRepository(db *gorm.DB) interfaces.AllowedSenderRepository {
	return &allowedSenderRepository{db: db}
}

// FindActive matches value case-insensitively and returns nil when no active entry exists.
func (r *allowedSenderRepository) FindActive(ctx context.Context, senderType enum.AllowedSenderType, value string) (*models.AllowedSender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "allowedSenderRepository.FindActive")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("type", senderType.String())

	var sender models.AllowedSender
	err := dbFromContext(ctx, r.db).
		Where("type = ? AND LOWER(value) = ? AND active = ?", senderType, strings.ToLower(value), true).
		Order("created_at").
		First(&sender).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &sender, nil
}

func (r *allowedSenderRepository) Create(ctx context.Context, sender *models.AllowedSender) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "allowedSenderRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if sender == nil || !sender.Type.IsValid() || strings.TrimSpace(sender.Value) == "" {
		return ErrInvalidInput
	}
	sender.Value = strings.ToLower(strings.TrimSpace(sender.Value))
	now := utils.Now()
	sender.CreatedAt, sender.UpdatedAt = now, now

	err := dbFromContext(ctx, r.db).Create(sender).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, sender.ID)
	return nil
}

func (r *allowedSenderRepository) List(ctx context.Context) ([]*models.AllowedSender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "allowedSenderRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var senders []*models.AllowedSender
	if err := dbFromContext(ctx, r.db).Order("type, value").Find(&senders).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return senders, nil
}
