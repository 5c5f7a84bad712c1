package ingest

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
)

// Runner polls every enabled mailbox with bounded parallelism. Each mailbox
// is strictly sequential inside its own run.
type Runner struct {
	poller        *Poller
	mailboxes     interfaces.MailboxRepository
	maxConcurrent int
	log           logger.Logger
}

func NewRunner(poller *Poller, mailboxes interfaces.MailboxRepository, maxConcurrent int, log logger.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{poller: poller, mailboxes: mailboxes, maxConcurrent: maxConcurrent, log: log}
}

// RunAll returns the summaries of the runs that started. A failing mailbox
// never stops the others; their errors are joined.
func (r *Runner) RunAll(ctx context.Context) ([]*dto.RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Runner.RunAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	mailboxes, err := r.mailboxes.GetEnabledMailboxes(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "list enabled mailboxes")
	}
	span.SetTag("mailboxes", len(mailboxes))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		summaries []*dto.RunSummary
		errs      []error
		semaphore = make(chan struct{}, r.maxConcurrent)
	)

	for _, mailbox := range mailboxes {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return summaries, stderrors.Join(append(errs, ctx.Err())...)
		}

		mailbox := mailbox
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer tracing.RecoverAndLogToJaeger(r.log)

			summary, err := r.poller.RunMailbox(ctx, mailbox)

			mu.Lock()
			defer mu.Unlock()
			if summary != nil {
				summaries = append(summaries, summary)
			}
			if err != nil && !errors.Is(err, repository.ErrLeaseHeld) {
				r.log.Errorf("mailbox %s run failed: %v", mailbox.Name, err)
				errs = append(errs, errors.Wrapf(err, "mailbox %s", mailbox.Name))
			}
		}()
	}
	wg.Wait()

	return summaries, stderrors.Join(errs...)
}
