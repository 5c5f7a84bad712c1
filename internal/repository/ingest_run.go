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

type ingestRunRepository struct {
	db *gorm.DB
}

func NewIngestRunRepository(db *gorm.DB) interfaces.IngestRunRepository {
	return &ingestRunRepository{db: db}
}

func (r *ingestRunRepository) Save(ctx context.Context, run *models.IngestRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestRunRepository.Save")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if run.ID == "" {
		run.ID = utils.GenerateNanoIDWithPrefix("irun", 16)
	}
	err := dbFromContext(ctx, r.db).Save(run).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *ingestRunRepository) List(ctx context.Context, mailbox string, limit int) ([]*models.IngestRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestRunRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if limit <= 0 {
		limit = 50
	}
	query := dbFromContext(ctx, r.db)
	if mailbox != "" {
		query = query.Where("mailbox = ?", mailbox)
	}

	var runs []*models.IngestRun
	if err := query.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return runs, nil
}

func (r *ingestRunRepository) LatestPerMailbox(ctx context.Context) ([]*models.IngestRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestRunRepository.LatestPerMailbox")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	db := dbFromContext(ctx, r.db)
	latest := db.Model(&models.IngestRun{}).
		Select("mailbox, MAX(started_at) AS started_at").
		Group("mailbox")

	var runs []*models.IngestRun
	err := db.Model(&models.IngestRun{}).
		Joins("JOIN (?) AS latest ON latest.mailbox = ingest_runs.mailbox AND latest.started_at = ingest_runs.started_at", latest).
		Order("ingest_runs.mailbox").
		Find(&runs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return runs, nil
}
