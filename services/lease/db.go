package lease

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/tracing"
)

type dbLeaseManager struct {
	repo   interfaces.MailboxLeaseRepository
	maxAge time.Duration
}

// NewDBLeaseManager keeps leases in the mailbox_leases table.
func NewDBLeaseManager(repo interfaces.MailboxLeaseRepository, maxAge time.Duration) interfaces.LeaseManager {
	return &dbLeaseManager{repo: repo, maxAge: maxAge}
}

func (m *dbLeaseManager) Acquire(ctx context.Context, mailbox, holder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DBLeaseManager.Acquire")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)

	err := m.repo.Acquire(ctx, mailbox, holder, m.maxAge)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (m *dbLeaseManager) Release(ctx context.Context, mailbox, holder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DBLeaseManager.Release")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)

	err := m.repo.Release(ctx, mailbox, holder)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
