package ingest

import (
	"context"
	"fmt"
	"sync"
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
	"github.com/customeros/mailintake/services/attachments"
	"github.com/customeros/mailintake/services/authorizer"
	"github.com/customeros/mailintake/services/parser"
	"github.com/customeros/mailintake/services/threading"
)

const maxErrorDetailLength = 2000

// Outcome is the terminal result of one uid.
type Outcome struct {
	UID                uint32
	MessageID          string
	Status             enum.IngestStatus
	Reason             enum.IngestReason
	TicketID           string
	DroppedAttachments int
	Detail             string
}

func (o *Outcome) UIDState() dto.UIDState {
	return dto.UIDState{
		UID:      o.UID,
		Status:   o.Status.String(),
		Reason:   o.Reason.String(),
		TicketID: o.TicketID,
	}
}

type Dependencies struct {
	Repositories *repository.Repositories
	Parser       interfaces.MessageParser
	Authorizer   *authorizer.Authorizer
	EmailFilter  interfaces.EmailFilterService
	Tickets      interfaces.TicketService
	Storage      interfaces.StorageService
	Notifier     interfaces.TicketNotifier
	Metrics      *metrics.Metrics
}

// MessageProcessor takes a single uid to a terminal ledger outcome. Message
// scoped failures become ledger rows; only mailbox scoped errors are returned.
type MessageProcessor struct {
	cfg      *config.IngestConfig
	deps     Dependencies
	policy   *attachments.Policy
	log      logger.Logger
	inFlight sync.WaitGroup
}

func NewMessageProcessor(cfg *config.IngestConfig, deps Dependencies, log logger.Logger) *MessageProcessor {
	return &MessageProcessor{
		cfg:    cfg,
		deps:   deps,
		policy: attachments.NewPolicy(cfg.MaxAttachmentBytes, cfg.DenylistedExtensions),
		log:    log,
	}
}

type written struct {
	ticketID        string
	ticketCode      string
	commentID       string
	ticketMessageID string
	reason          enum.IngestReason
	dropped         int
}

func (p *MessageProcessor) Process(ctx context.Context, session interfaces.MailboxSession, mailbox string, uid uint32, resolver *threading.Resolver) (*Outcome, error) {
	ctx = utils.WithMessageUID(ctx, uid)
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageProcessor.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	started := time.Now()
	defer func() { p.deps.Metrics.ObserveMessageDuration(time.Since(started)) }()

	outcome := &Outcome{UID: uid}

	seen, err := p.deps.Repositories.IngestLogRepository.Exists(ctx, mailbox, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mierrors.NewLedgerUnavailableError(err)
	}
	if seen {
		// Already terminal in an earlier run; nothing is written again.
		outcome.Status, outcome.Reason = enum.IngestSkipped, enum.ReasonDuplicateUID
		p.deps.Metrics.ObserveOutcome(mailbox, outcome.Status, outcome.Reason)
		return outcome, nil
	}

	raw, err := session.FetchRaw(ctx, uid)
	if err != nil {
		if errors.Is(err, mierrors.ErrMessageNotFound) {
			return p.finish(ctx, session, mailbox, outcome, mierrors.NewParseError(err))
		}
		tracing.TraceErr(span, err)
		return nil, mierrors.NewTransientConnectionError(err, fmt.Sprintf("fetch uid %d", uid))
	}

	email, err := p.deps.Parser.Parse(raw)
	if err != nil {
		return p.finish(ctx, session, mailbox, outcome, err)
	}
	outcome.MessageID = email.MessageID
	span.SetTag("message-id", email.MessageID)
	for _, warning := range email.Warnings {
		p.log.Debugf("mailbox %s uid %d: %s", mailbox, uid, warning)
	}

	decision, err := p.deps.Authorizer.Authorize(ctx, email.From)
	if err != nil {
		return p.finish(ctx, session, mailbox, outcome, mierrors.NewDatabaseError(err))
	}
	if !decision.Allowed {
		return p.finish(ctx, session, mailbox, outcome, mierrors.NewUnauthorizedSenderError(decision.Address))
	}

	if email.MessageID != "" {
		duplicate, err := p.deps.Repositories.TicketMessageRepository.ExistsByMessageID(ctx, email.MessageID)
		if err != nil {
			return p.finish(ctx, session, mailbox, outcome, mierrors.NewDatabaseError(err))
		}
		if duplicate {
			// The stored copy may be our own, written by a run that crashed before its ledger append.
			return p.finish(ctx, session, mailbox, outcome, p.duplicateReason(ctx, mailbox, uid))
		}
	}

	classification, why := p.deps.EmailFilter.Classify(ctx, email)
	span.SetTag("classification", classification.String())
	if classification != enum.EmailOK {
		p.log.Infof("mailbox %s uid %d classified as %s: %s", mailbox, uid, classification, why)
	}

	resolution, err := resolver.Resolve(ctx, email)
	if err != nil {
		return p.finish(ctx, session, mailbox, outcome, mierrors.NewDatabaseError(err))
	}

	result, err := p.write(ctx, mailbox, uid, email, decision, resolution, classification)
	if err != nil {
		return p.finish(ctx, session, mailbox, outcome, p.classifyWriteError(ctx, mailbox, uid, email.MessageID, err))
	}

	outcome.Status, outcome.Reason = result.reason.Status(), result.reason
	outcome.TicketID = result.ticketID
	outcome.DroppedAttachments = result.dropped
	if _, err := p.finish(ctx, session, mailbox, outcome, nil); err != nil {
		return nil, err
	}

	resolver.Record(email, result.ticketID)
	p.notify(ctx, mailbox, uid, email, result)
	return outcome, nil
}

// write stores the ticket or comment, the ticket message and its attachments
// in one transaction. Uploaded objects are deleted when it rolls back.
func (p *MessageProcessor) write(ctx context.Context, mailbox string, uid uint32, email *dto.ParsedEmail, decision *authorizer.Decision,
	resolution *threading.Resolution, classification enum.EmailClassification) (*written, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageProcessor.write")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var accepted []dto.ParsedAttachment
	dropped := 0
	for _, attachment := range email.Attachments {
		if err := p.policy.Check(attachment); err != nil {
			dropped++
			p.log.Infof("mailbox %s uid %d: dropping attachment: %v", mailbox, uid, err)
			continue
		}
		accepted = append(accepted, attachment)
	}

	htmlBody := parser.SanitizeHTML(email.HTMLBody)
	body := email.TextBody
	if htmlBody != "" {
		body = htmlBody
	}

	store := attachments.NewStore(p.deps.Storage)
	result := &written{dropped: dropped}

	err := p.deps.Repositories.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		requester, err := p.deps.Tickets.ResolveRequester(ctx, interfaces.ResolveRequesterInput{
			Email:       decision.Address,
			DisplayName: email.FromName,
			BoundUserID: decision.UserID,
		})
		if err != nil {
			return errors.Wrap(err, "resolve requester")
		}

		if resolution.Matched() {
			comment, err := p.deps.Tickets.AddInboundComment(ctx, interfaces.InboundCommentInput{
				TicketID: resolution.TicketID,
				AuthorID: requester.ID,
				Body:     email.TextBody,
				BodyHTML: htmlBody,
			})
			if err != nil {
				return errors.Wrap(err, "add comment")
			}
			result.ticketID, result.commentID, result.reason = resolution.TicketID, comment.ID, enum.ReasonComment
		} else {
			ticket, err := p.deps.Tickets.CreateTicket(ctx, interfaces.NewTicketInput{
				Title:         email.Subject,
				Description:   body,
				RequesterID:   requester.ID,
				SourceMailbox: mailbox,
			})
			if err != nil {
				return errors.Wrap(err, "create ticket")
			}
			result.ticketID, result.ticketCode, result.reason = ticket.ID, ticket.Code, enum.ReasonNewTicket
		}

		message := &models.TicketMessage{
			ID:                 utils.GenerateNanoIDWithPrefix("tmsg", 16),
			TicketID:           result.ticketID,
			CommentID:          utils.StringPtrOrNil(result.commentID),
			Direction:          enum.MessageInbound,
			FromAddress:        decision.Address,
			FromName:           email.FromName,
			Subject:            email.Subject,
			BodyText:           email.TextBody,
			BodyHTML:           email.HTMLBody,
			RawHeaders:         models.Headers(email.RawHeaders),
			MessageID:          utils.StringPtrOrNil(email.MessageID),
			InReplyTo:          email.InReplyTo,
			References:         email.References,
			Mailbox:            mailbox,
			UID:                utils.Uint32Ptr(uid),
			Classification:     classification,
			DroppedAttachments: dropped,
		}
		if err := p.deps.Repositories.TicketMessageRepository.Create(ctx, message); err != nil {
			return err
		}
		result.ticketMessageID = message.ID

		for _, attachment := range accepted {
			row, err := store.Save(ctx, result.ticketID, message.ID, attachment)
			if err != nil {
				return mierrors.NewStorageError(err)
			}
			if err := p.deps.Repositories.TicketMessageAttachmentRepository.Create(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		if leftover := store.Rollback(context.WithoutCancel(ctx)); len(leftover) > 0 {
			p.log.Warnf("mailbox %s uid %d: could not delete orphaned attachments %v", mailbox, uid, leftover)
		}
		return nil, err
	}
	return result, nil
}

// classifyWriteError maps a failed transaction to its ledger outcome. A
// uniqueness violation only counts as a duplicate when the stored row that
// caused it can be found: the same (mailbox, uid) from a run that crashed
// before its ledger append, or the same message id from another mailbox.
// Anything else, such as a ticket code collision, is a db_error.
func (p *MessageProcessor) classifyWriteError(ctx context.Context, mailbox string, uid uint32, messageID string, err error) error {
	if mierrors.KindOf(err) == mierrors.KindStorage {
		return err
	}
	if !repository.IsUniqueViolation(err) {
		return mierrors.NewDatabaseError(err)
	}

	replay, lookupErr := p.deps.Repositories.TicketMessageRepository.ExistsByMailboxUID(ctx, mailbox, uid)
	if lookupErr != nil {
		return mierrors.NewDatabaseError(lookupErr)
	}
	if replay {
		return mierrors.NewDuplicateError(enum.ReasonDuplicateUID)
	}
	if messageID != "" {
		taken, lookupErr := p.deps.Repositories.TicketMessageRepository.ExistsByMessageID(ctx, messageID)
		if lookupErr != nil {
			return mierrors.NewDatabaseError(lookupErr)
		}
		if taken {
			return mierrors.NewDuplicateError(enum.ReasonDuplicateMessageID)
		}
	}
	return mierrors.NewDatabaseError(err)
}

func (p *MessageProcessor) duplicateReason(ctx context.Context, mailbox string, uid uint32) error {
	replay, err := p.deps.Repositories.TicketMessageRepository.ExistsByMailboxUID(ctx, mailbox, uid)
	if err != nil {
		return mierrors.NewDatabaseError(err)
	}
	if replay {
		return mierrors.NewDuplicateError(enum.ReasonDuplicateUID)
	}
	return mierrors.NewDuplicateError(enum.ReasonDuplicateMessageID)
}

// finish appends the ledger row and marks the message seen. cause is nil for
// processed messages; otherwise its reason decides the row.
func (p *MessageProcessor) finish(ctx context.Context, session interfaces.MailboxSession, mailbox string, outcome *Outcome, cause error) (*Outcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageProcessor.finish")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if cause != nil {
		ingestErr, ok := mierrors.AsIngestError(cause)
		if !ok || ingestErr.Reason == "" {
			ingestErr = mierrors.NewDatabaseError(cause).(*mierrors.IngestError)
		}
		outcome.Status, outcome.Reason = ingestErr.Reason.Status(), ingestErr.Reason
		if outcome.Status == enum.IngestFailed {
			outcome.Detail = utils.Truncate(cause.Error(), maxErrorDetailLength)
		}
	}

	entry := &models.IngestLogEntry{
		Mailbox:     mailbox,
		UID:         outcome.UID,
		MessageID:   utils.StringPtrOrNil(outcome.MessageID),
		Status:      outcome.Status,
		Reason:      outcome.Reason,
		ErrorDetail: utils.StringPtrOrNil(outcome.Detail),
		TicketID:    utils.StringPtrOrNil(outcome.TicketID),
		RunID:       utils.GetRunIDFromContext(ctx),
	}
	inserted, err := p.deps.Repositories.IngestLogRepository.Append(ctx, entry)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("mailbox %s uid %d: ledger append failed, stopping run: %v", mailbox, outcome.UID, err)
		return nil, mierrors.NewLedgerUnavailableError(err)
	}
	if !inserted {
		p.log.Warnf("mailbox %s uid %d: ledger row already present, keeping the first outcome", mailbox, outcome.UID)
	}

	span.SetTag("status", outcome.Status.String())
	span.SetTag("reason", outcome.Reason.String())
	p.deps.Metrics.ObserveOutcome(mailbox, outcome.Status, outcome.Reason)
	p.deps.Metrics.ObserveDropped(mailbox, outcome.DroppedAttachments)
	if outcome.Status == enum.IngestFailed {
		p.log.Warnf("mailbox %s uid %d failed (%s): %s", mailbox, outcome.UID, outcome.Reason, outcome.Detail)
	}

	if p.shouldMarkSeen(outcome) {
		if err := session.MarkSeen(ctx, outcome.UID); err != nil {
			// The ledger already made the outcome terminal; \Seen is cosmetic.
			p.log.Warnf("mailbox %s uid %d: mark seen failed: %v", mailbox, outcome.UID, err)
		}
	}
	return outcome, nil
}

func (p *MessageProcessor) shouldMarkSeen(outcome *Outcome) bool {
	switch outcome.Status {
	case enum.IngestProcessed:
		return true
	case enum.IngestSkipped:
		return p.cfg.MarkSeenOnSkip
	default:
		return false
	}
}

// notify hands the committed ticket event to the notifier in the background.
// Its failure never changes the outcome.
func (p *MessageProcessor) notify(ctx context.Context, mailbox string, uid uint32, email *dto.ParsedEmail, result *written) {
	if p.deps.Notifier == nil {
		return
	}
	event := &dto.TicketEvent{
		Type:            dto.TicketEventCreated,
		TicketID:        result.ticketID,
		TicketCode:      result.ticketCode,
		CommentID:       result.commentID,
		TicketMessageID: result.ticketMessageID,
		Mailbox:         mailbox,
		UID:             uid,
		From:            email.From,
		Subject:         email.Subject,
	}
	if result.reason == enum.ReasonComment {
		event.Type = dto.TicketEventCommentAdded
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.NotificationTimeout)
	p.inFlight.Add(1)
	go func() {
		defer p.inFlight.Done()
		defer cancel()
		defer tracing.RecoverAndLogToJaeger(p.log)

		if err := p.deps.Notifier.NotifyTicketEvent(notifyCtx, event); err != nil {
			p.deps.Metrics.ObserveNotifyFailure()
			p.log.Warnf("mailbox %s uid %d: ticket notification failed: %v", mailbox, uid, err)
		}
	}()
}

// WaitNotifications blocks until background notifications have returned.
func (p *MessageProcessor) WaitNotifications() {
	p.inFlight.Wait()
}
