package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

const defaultLedgerListLimit = 100

// ingestLogRepository is append-only; it deliberately has no update or delete.
type ingestLogRepository struct {
	db *gorm.DB
}

func NewIngestLogRepository(db *gorm.DB) interfaces.IngestLogRepository {
	return &ingestLogRepository{db: db}
}

func (r *ingestLogRepository) Append(ctx context.Context, entry *models.IngestLogEntry) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestLogRepository.Append")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if entry == nil || entry.Mailbox == "" || !entry.Status.IsValid() || entry.Reason.Status() != entry.Status {
		tracing.TraceErr(span, ErrInvalidInput)
		return false, ErrInvalidInput
	}
	span.SetTag("status", entry.Status.String())
	span.SetTag("reason", entry.Reason.String())

	err := dbFromContext(ctx, r.db).Create(entry).Error
	if err != nil {
		if IsUniqueViolation(err) {
			span.LogKV("event", "ledger entry already present")
			return false, nil
		}
		tracing.TraceErr(span, err)
		return false, err
	}
	return true, nil
}

func (r *ingestLogRepository) Exists(ctx context.Context, mailbox string, uid uint32) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestLogRepository.Exists")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := dbFromContext(ctx, r.db).Model(&models.IngestLogEntry{}).
		Where("mailbox = ? AND uid = ?", mailbox, uid).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *ingestLogRepository) Get(ctx context.Context, mailbox string, uid uint32) (*models.IngestLogEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestLogRepository.Get")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var entry models.IngestLogEntry
	err := dbFromContext(ctx, r.db).First(&entry, "mailbox = ? AND uid = ?", mailbox, uid).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &entry, nil
}

func (r *ingestLogRepository) List(ctx context.Context, filter interfaces.IngestLogFilter) ([]*models.IngestLogEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestLogRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "filter", filter)

	query := dbFromContext(ctx, r.db).Model(&models.IngestLogEntry{})
	if filter.Mailbox != "" {
		query = query.Where("mailbox = ?", filter.Mailbox)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLedgerListLimit
	}

	var entries []*models.IngestLogEntry
	err := query.Order("created_at DESC, uid DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}

func (r *ingestLogRepository) CountByStatus(ctx context.Context, mailbox string) (map[enum.IngestStatus]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestLogRepository.CountByStatus")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var rows []struct {
		Status enum.IngestStatus
		Total  int64
	}
	query := dbFromContext(ctx, r.db).Model(&models.IngestLogEntry{}).Select("status, count(*) AS total")
	if mailbox != "" {
		query = query.Where("mailbox = ?", mailbox)
	}
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[enum.IngestStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
