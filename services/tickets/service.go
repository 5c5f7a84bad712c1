package tickets

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/internal/utils"
)

const (
	NoSubjectTitle      = "(no subject)"
	maxTitleLength      = 1000
	codeGenerationTries = 5
)

var ErrCodeSpaceExhausted = errors.New("could not generate a unique ticket code")

type ticketService struct {
	tickets    interfaces.TicketRepository
	requesters interfaces.RequesterRepository
	codePrefix string
}

func NewTicketService(tickets interfaces.TicketRepository, requesters interfaces.RequesterRepository, codePrefix string) interfaces.TicketService {
	if codePrefix == "" {
		codePrefix = "TCK"
	}
	return &ticketService{tickets: tickets, requesters: requesters, codePrefix: strings.ToUpper(codePrefix)}
}

func (s *ticketService) CreateTicket(ctx context.Context, input interfaces.NewTicketInput) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketService.CreateTicket")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = NoSubjectTitle
	}

	code, err := s.newCode(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	now := utils.Now()
	ticket := &models.Ticket{
		Code:          code,
		Title:         utils.Truncate(title, maxTitleLength),
		Description:   input.Description,
		RequesterID:   input.RequesterID,
		Status:        enum.TicketOpen,
		SourceMailbox: input.SourceMailbox,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create ticket")
	}

	tracing.TagEntity(span, ticket.ID)
	span.SetTag("code", ticket.Code)
	return ticket, nil
}

func (s *ticketService) newCode(ctx context.Context) (string, error) {
	for i := 0; i < codeGenerationTries; i++ {
		code := utils.GenerateTicketCode(s.codePrefix)
		existing, err := s.tickets.GetByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// AddInboundComment appends a comment and bumps the ticket's updated_at.
func (s *ticketService) AddInboundComment(ctx context.Context, input interfaces.InboundCommentInput) (*models.TicketComment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketService.AddInboundComment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, input.TicketID)

	now := utils.Now()
	comment := &models.TicketComment{
		TicketID:  input.TicketID,
		AuthorID:  input.AuthorID,
		Body:      input.Body,
		BodyHTML:  input.BodyHTML,
		Direction: enum.MessageInbound,
		CreatedAt: now,
	}

	if err := s.tickets.Touch(ctx, input.TicketID, now); err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to touch ticket")
	}
	if err := s.tickets.CreateComment(ctx, comment); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create comment")
	}
	return comment, nil
}

// ResolveRequester prefers the user bound to the allow-list entry, then an
// existing requester with the same address, and creates one on first sight.
func (s *ticketService) ResolveRequester(ctx context.Context, input interfaces.ResolveRequesterInput) (*models.Requester, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketService.ResolveRequester")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if input.BoundUserID != nil && *input.BoundUserID != "" {
		requester, err := s.requesters.GetByID(ctx, *input.BoundUserID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if requester != nil {
			span.SetTag("resolved-by", "bound-user")
			return requester, nil
		}
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, repository.ErrInvalidInput
	}

	candidate := &models.Requester{Email: email, DisplayName: input.DisplayName}
	if input.BoundUserID != nil {
		candidate.ID = *input.BoundUserID
	}
	requester, err := s.requesters.FirstOrCreate(ctx, candidate)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("resolved-by", "email")
	tracing.TagEntity(span, requester.ID)
	return requester, nil
}

func (s *ticketService) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketService.GetTicketByCode")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.tickets.GetByCode(ctx, strings.ToUpper(code))
}

func (s *ticketService) MostRecentlyUpdated(ctx context.Context, ticketIDs []string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketService.MostRecentlyUpdated")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.tickets.MostRecentlyUpdated(ctx, ticketIDs)
}
