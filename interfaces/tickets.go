package interfaces

import (
	"context"

	"github.com/customeros/mailintake/internal/models"
)

type NewTicketInput struct {
	Title         string
	Description   string
	RequesterID   string
	SourceMailbox string
}

type InboundCommentInput struct {
	TicketID string
	AuthorID string
	Body     string
	BodyHTML string
}

type ResolveRequesterInput struct {
	Email       string
	DisplayName string
	// BoundUserID is the user id bound to the matched allow-list entry, if any.
	BoundUserID *string
}

// TicketService is the part of the ticket domain the ingest pipeline writes to.
type TicketService interface {
	CreateTicket(ctx context.Context, input NewTicketInput) (*models.Ticket, error)
	AddInboundComment(ctx context.Context, input InboundCommentInput) (*models.TicketComment, error)
	ResolveRequester(ctx context.Context, input ResolveRequesterInput) (*models.Requester, error)
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	MostRecentlyUpdated(ctx context.Context, ticketIDs []string) (*models.Ticket, error)
}
