package repository

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

type requesterRepository struct {
	db *gorm.DB
}

func NewRequesterRepository(db *gorm.DB) interfaces.RequesterRepository {
	return &requesterRepository{db: db}
}

func (r *requesterRepository) GetByID(ctx context.Context, id string) (*models.Requester, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var requester models.Requester
	err := dbFromContext(ctx, r.db).First(&requester, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &requester, nil
}

func (r *requesterRepository) GetByEmail(ctx context.Context, email string) (*models.Requester, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.GetByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var requester models.Requester
	err := dbFromContext(ctx, r.db).First(&requester, "email = ?", strings.ToLower(email)).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &requester, nil
}

func (r *requesterRepository) Create(ctx context.Context, requester *models.Requester) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if requester == nil || requester.Email == "" {
		return ErrInvalidInput
	}
	requester.Email = strings.ToLower(requester.Email)

	err := dbFromContext(ctx, r.db).Create(requester).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, requester.ID)
	return nil
}

func (r *requesterRepository) FirstOrCreate(ctx context.Context, requester *models.Requester) (*models.Requester, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.FirstOrCreate")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if requester == nil || requester.Email == "" {
		return nil, ErrInvalidInput
	}
	requester.Email = strings.ToLower(requester.Email)

	existing, err := r.GetByEmail(ctx, requester.Email)
	if err != nil || existing != nil {
		return existing, err
	}

	// nested transactions become savepoints, so a lost race does not abort an outer transaction
	err = dbFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(requester).Error
	})
	if err == nil {
		tracing.TagEntity(span, requester.ID)
		return requester, nil
	}
	if !IsUniqueViolation(err) {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return r.GetByEmail(ctx, requester.Email)
}
