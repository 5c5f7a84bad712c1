package events

import (
	"fmt"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
)

type EventsService struct {
	Publisher interfaces.EventPublisher
	Notifier  interfaces.TicketNotifier
}

// NewEventsService connects to RabbitMQ when a URL is configured. Without one
// ticket events are only logged.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, ticket events will only be logged")
		return &EventsService{Notifier: NewLogNotifier(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
		Notifier:  NewPublisherNotifier(publisher, log),
	}, nil
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}
