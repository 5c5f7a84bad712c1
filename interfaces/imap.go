package interfaces

import (
	"context"

	"github.com/customeros/mailintake/internal/models"
)

type MailboxDialer interface {
	// Dial connects and authenticates. The caller owns the returned session.
	Dial(ctx context.Context, mailbox *models.Mailbox) (MailboxSession, error)
}

type MailboxSession interface {
	Select(ctx context.Context, folder string) (uidValidity uint32, err error)
	// SearchUIDsAfter returns uids strictly greater than lastSeen in ascending order.
	SearchUIDsAfter(ctx context.Context, lastSeen uint32) ([]uint32, error)
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}
