package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

type ticketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) interfaces.TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if ticket == nil || ticket.Code == "" {
		return ErrInvalidInput
	}

	err := dbFromContext(ctx, r.db).Create(ticket).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, ticket.ID)
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var ticket models.Ticket
	err := dbFromContext(ctx, r.db).First(&ticket, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.GetByCode")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("code", code)

	var ticket models.Ticket
	err := dbFromContext(ctx, r.db).First(&ticket, "code = ?", code).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) MostRecentlyUpdated(ctx context.Context, ids []string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.MostRecentlyUpdated")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if len(ids) == 0 {
		return nil, nil
	}

	var ticket models.Ticket
	err := dbFromContext(ctx, r.db).
		Where("id IN ?", ids).
		Order("updated_at DESC, id DESC").
		First(&ticket).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Touch(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.Touch")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	result := dbFromContext(ctx, r.db).Model(&models.Ticket{}).
		Where("id = ?", id).
		Update("updated_at", at)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepository) CreateComment(ctx context.Context, comment *models.TicketComment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.CreateComment")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if comment == nil || comment.TicketID == "" {
		return ErrInvalidInput
	}

	err := dbFromContext(ctx, r.db).Create(comment).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, comment.ID)
	return nil
}

func (r *ticketRepository) ListComments(ctx context.Context, ticketID string) ([]*models.TicketComment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.ListComments")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, ticketID)

	var comments []*models.TicketComment
	err := dbFromContext(ctx, r.db).
		Where("ticket_id = ?", ticketID).
		Order("created_at, id").
		Find(&comments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return comments, nil
}
