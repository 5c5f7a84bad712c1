package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	mierrors "github.com/customeros/mailintake/internal/errors"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/metrics"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
	"github.com/customeros/mailintake/services/threading"
)

// Poller runs a single mailbox: lease, fetch new uids, process them in order
// and advance the watermark once at the end.
type Poller struct {
	cfg       *config.IngestConfig
	repos     *repository.Repositories
	dialer    interfaces.MailboxDialer
	leases    interfaces.LeaseManager
	processor *MessageProcessor
	tickets   interfaces.TicketService
	metrics   *metrics.Metrics
	holder    string
	log       logger.Logger
}

func NewPoller(cfg *config.IngestConfig, repos *repository.Repositories, dialer interfaces.MailboxDialer, leases interfaces.LeaseManager,
	processor *MessageProcessor, tickets interfaces.TicketService, metrics *metrics.Metrics, holder string, log logger.Logger) *Poller {
	return &Poller{
		cfg:       cfg,
		repos:     repos,
		dialer:    dialer,
		leases:    leases,
		processor: processor,
		tickets:   tickets,
		metrics:   metrics,
		holder:    holder,
		log:       log,
	}
}

func (p *Poller) Processor() *MessageProcessor {
	return p.processor
}

func (p *Poller) RunMailbox(ctx context.Context, mailbox *models.Mailbox) (*dto.RunSummary, error) {
	if err := validateMailbox(mailbox); err != nil {
		return nil, err
	}

	runID := utils.GenerateNanoIDWithPrefix("irun", 16)
	ctx = utils.WithIngestContext(ctx, &utils.IngestContext{RunID: runID, Mailbox: mailbox.Name})
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.RunMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	log := p.log.With("mailbox", mailbox.Name, "run_id", runID)

	// The token is unique per run so two runs in one process still exclude each other.
	leaseToken := p.holder + "/" + runID
	if err := p.leases.Acquire(ctx, mailbox.Name, leaseToken); err != nil {
		if errors.Is(err, repository.ErrLeaseHeld) {
			p.metrics.ObserveLeaseHeld(mailbox.Name)
			log.Infof("lease held by another run, skipping")
			return nil, err
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "acquire lease")
	}
	defer func() {
		if err := p.leases.Release(context.WithoutCancel(ctx), mailbox.Name, leaseToken); err != nil {
			log.Warnf("failed to release lease: %v", err)
		}
	}()

	summary := &dto.RunSummary{RunID: runID, Mailbox: mailbox.Name, StartedAt: utils.Now()}
	runErr := p.run(ctx, mailbox, summary, log)
	summary.FinishedAt = utils.Now()
	if runErr != nil {
		tracing.TraceErr(span, runErr)
		summary.Error = runErr.Error()
	}

	p.saveRun(ctx, summary, log)
	p.observeRun(summary, runErr)
	log.Infof("run finished: processed=%d skipped=%d failed=%d dropped_attachments=%d watermark %d -> %d",
		summary.Processed, summary.Skipped, summary.Failed, summary.DroppedAttachments, summary.PreviousUID, summary.Watermark)
	return summary, runErr
}

func (p *Poller) run(ctx context.Context, mailbox *models.Mailbox, summary *dto.RunSummary, log logger.Logger) error {
	state, err := p.repos.MailboxStateRepository.GetState(ctx, mailbox.Name)
	if err != nil {
		return errors.Wrap(err, "read mailbox state")
	}
	summary.PreviousUID = state.LastSeenUID
	summary.Watermark = state.LastSeenUID

	session, err := p.dialer.Dial(ctx, mailbox)
	if err != nil {
		return mierrors.NewTransientConnectionError(err, "connect to mailbox")
	}
	defer session.Close()

	uidValidity, err := session.Select(ctx, mailbox.FolderOrDefault())
	if err != nil {
		return mierrors.NewTransientConnectionError(err, "select folder")
	}
	if state.UIDValidity != 0 && uidValidity != state.UIDValidity {
		log.Errorf("uid validity changed from %d to %d, watermark reset required", state.UIDValidity, uidValidity)
		return mierrors.NewConfigError(mierrors.ErrUIDValidityChanged, fmt.Sprintf("folder %s", mailbox.FolderOrDefault()))
	}

	uids, err := session.SearchUIDsAfter(ctx, state.LastSeenUID)
	if err != nil {
		return mierrors.NewTransientConnectionError(err, "search new messages")
	}
	if len(uids) > p.cfg.MaxMessagesPerRun {
		log.Infof("%d new messages, processing the first %d", len(uids), p.cfg.MaxMessagesPerRun)
		uids = uids[:p.cfg.MaxMessagesPerRun]
	}

	resolver := threading.NewDefaultResolver(log, p.tickets, p.repos.TicketMessageRepository, p.cfg.TicketCodePrefix)
	deadline := time.Now().Add(p.cfg.RunTimeBudget)
	// Messages run detached from cancellation; ctx is only checked between them.
	messageCtx := context.WithoutCancel(ctx)

	var runErr error
	lastTerminal := state.LastSeenUID
	for i, uid := range uids {
		if err := ctx.Err(); err != nil {
			log.Infof("run cancelled after %d of %d messages", i, len(uids))
			runErr = err
			break
		}
		if i > 0 && time.Now().After(deadline) {
			log.Infof("run time budget exhausted after %d of %d messages", i, len(uids))
			break
		}

		outcome, err := p.processor.Process(messageCtx, session, mailbox.Name, uid, resolver)
		if err != nil {
			runErr = err
			break
		}
		addOutcome(summary, outcome)
		if uid > lastTerminal {
			lastTerminal = uid
		}
	}

	if err := p.commitWatermark(messageCtx, state, lastTerminal, uidValidity, summary); err != nil {
		return stderrors.Join(runErr, err)
	}
	return runErr
}

// commitWatermark persists the state once per run. The watermark never moves
// backwards and a concurrent writer surfaces as ErrWatermarkConflict.
func (p *Poller) commitWatermark(ctx context.Context, state *models.MailboxState, lastTerminal, uidValidity uint32, summary *dto.RunSummary) error {
	next := &models.MailboxState{
		Mailbox:     state.Mailbox,
		LastSeenUID: state.LastSeenUID,
		UIDValidity: uidValidity,
	}
	if lastTerminal > next.LastSeenUID {
		next.LastSeenUID = lastTerminal
	}
	if next.LastSeenUID == state.LastSeenUID && next.UIDValidity == state.UIDValidity {
		return nil
	}

	saved, err := p.repos.MailboxStateRepository.CompareAndSet(ctx, next, state.Version)
	if err != nil {
		return err
	}
	summary.Watermark = saved.LastSeenUID
	return nil
}

func (p *Poller) saveRun(ctx context.Context, summary *dto.RunSummary, log logger.Logger) {
	finishedAt := summary.FinishedAt
	run := &models.IngestRun{
		ID:                 summary.RunID,
		Mailbox:            summary.Mailbox,
		StartedAt:          summary.StartedAt,
		FinishedAt:         &finishedAt,
		Processed:          summary.Processed,
		Skipped:            summary.Skipped,
		Failed:             summary.Failed,
		DroppedAttachments: summary.DroppedAttachments,
		PreviousUID:        summary.PreviousUID,
		Watermark:          summary.Watermark,
		Error:              summary.Error,
	}
	if err := p.repos.IngestRunRepository.Save(context.WithoutCancel(ctx), run); err != nil {
		log.Warnf("failed to save run summary: %v", err)
	}
}

func (p *Poller) observeRun(summary *dto.RunSummary, runErr error) {
	p.metrics.ObserveRun(summary.Mailbox, runErr != nil, summary.FinishedAt.Sub(summary.StartedAt), summary.Watermark)
}

func addOutcome(summary *dto.RunSummary, outcome *Outcome) {
	switch outcome.Status {
	case enum.IngestProcessed:
		summary.Processed++
	case enum.IngestSkipped:
		summary.Skipped++
	case enum.IngestFailed:
		summary.Failed++
	}
	summary.DroppedAttachments += outcome.DroppedAttachments
	summary.Outcomes = append(summary.Outcomes, outcome.UIDState())
}

func validateMailbox(mailbox *models.Mailbox) error {
	if mailbox == nil {
		return mierrors.NewConfigError(mierrors.ErrInvalidMailboxConf, "mailbox is nil")
	}
	var missing []string
	if strings.TrimSpace(mailbox.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(mailbox.Host) == "" {
		missing = append(missing, "host")
	}
	if mailbox.Port <= 0 || mailbox.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(mailbox.Username) == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return mierrors.NewConfigError(mierrors.ErrInvalidMailboxConf, "invalid "+strings.Join(missing, ", "))
	}
	return nil
}
