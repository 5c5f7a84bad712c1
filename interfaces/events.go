package interfaces

import (
	"context"

	"github.com/customeros/mailintake/dto"
)

type EventPublisher interface {
	PublishFanoutEvent(ctx context.Context, entityId string, eventType string, message interface{}) error
	Close() error
}

// TicketNotifier is invoked after a ticket or comment was committed.
type TicketNotifier interface {
	NotifyTicketEvent(ctx context.Context, event *dto.TicketEvent) error
}
