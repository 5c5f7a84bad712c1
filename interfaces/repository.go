package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/models"
)

// Transactor runs fn inside a database transaction carried by ctx.
// Repositories called with that ctx join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type MailboxRepository interface {
	GetMailboxes(ctx context.Context) ([]*models.Mailbox, error)
	GetEnabledMailboxes(ctx context.Context) ([]*models.Mailbox, error)
	GetMailbox(ctx context.Context, name string) (*models.Mailbox, error)
	SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

type MailboxStateRepository interface {
	// GetState returns a zero state with version 0 when the mailbox was never polled.
	GetState(ctx context.Context, mailbox string) (*models.MailboxState, error)
	// CompareAndSet persists state when the stored version still equals
	// expectedVersion and the watermark does not move backwards.
	CompareAndSet(ctx context.Context, state *models.MailboxState, expectedVersion int64) (*models.MailboxState, error)
	// Reset is the operator override; it may lower the watermark and clears uid validity.
	Reset(ctx context.Context, mailbox string, lastSeenUID uint32) (*models.MailboxState, error)
}

type MailboxLeaseRepository interface {
	Acquire(ctx context.Context, mailbox, holder string, maxAge time.Duration) error
	Release(ctx context.Context, mailbox, holder string) error
}

type IngestLogFilter struct {
	Mailbox string
	Status  enum.IngestStatus
	Reason  enum.IngestReason
	Since   *time.Time
	Limit   int
}

type IngestLogRepository interface {
	// Append inserts entry once. A second append for the same mailbox and uid
	// returns inserted=false with no error.
	Append(ctx context.Context, entry *models.IngestLogEntry) (inserted bool, err error)
	Exists(ctx context.Context, mailbox string, uid uint32) (bool, error)
	Get(ctx context.Context, mailbox string, uid uint32) (*models.IngestLogEntry, error)
	List(ctx context.Context, filter IngestLogFilter) ([]*models.IngestLogEntry, error)
	CountByStatus(ctx context.Context, mailbox string) (map[enum.IngestStatus]int64, error)
}

type IngestRunRepository interface {
	Save(ctx context.Context, run *models.IngestRun) error
	List(ctx context.Context, mailbox string, limit int) ([]*models.IngestRun, error)
	LatestPerMailbox(ctx context.Context) ([]*models.IngestRun, error)
}

type TicketMessageRepository interface {
	Create(ctx context.Context, message *models.TicketMessage) error
	GetByID(ctx context.Context, id string) (*models.TicketMessage, error)
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	ExistsByMailboxUID(ctx context.Context, mailbox string, uid uint32) (bool, error)
	// TicketIDsByMessageIDs returns the distinct tickets owning any of the given message ids.
	TicketIDsByMessageIDs(ctx context.Context, messageIDs []string) ([]string, error)
}

type TicketMessageAttachmentRepository interface {
	Create(ctx context.Context, attachment *models.TicketMessageAttachment) error
	ListByTicketMessage(ctx context.Context, ticketMessageID string) ([]*models.TicketMessageAttachment, error)
}

type AllowedSenderRepository interface {
	FindActive(ctx context.Context, senderType enum.AllowedSenderType, value string) (*models.AllowedSender, error)
	Create(ctx context.Context, sender *models.AllowedSender) error
	List(ctx context.Context) ([]*models.AllowedSender, error)
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	MostRecentlyUpdated(ctx context.Context, ids []string) (*models.Ticket, error)
	Touch(ctx context.Context, id string, at time.Time) error
	CreateComment(ctx context.Context, comment *models.TicketComment) error
	ListComments(ctx context.Context, ticketID string) ([]*models.TicketComment, error)
}

type RequesterRepository interface {
	GetByID(ctx context.Context, id string) (*models.Requester, error)
	GetByEmail(ctx context.Context, email string) (*models.Requester, error)
	Create(ctx context.Context, requester *models.Requester) error
	// FirstOrCreate returns the requester stored under requester.Email,
	// creating it when absent. Concurrent creators converge on one row.
	FirstOrCreate(ctx context.Context, requester *models.Requester) (*models.Requester, error)
}
