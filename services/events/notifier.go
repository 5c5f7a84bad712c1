package events

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/tracing"
)

type publisherNotifier struct {
	publisher interfaces.EventPublisher
	log       logger.Logger
}

// NewPublisherNotifier publishes ticket events on the fanout exchange.
func NewPublisherNotifier(publisher interfaces.EventPublisher, log logger.Logger) interfaces.TicketNotifier {
	return &publisherNotifier{publisher: publisher, log: log}
}

func (n *publisherNotifier) NotifyTicketEvent(ctx context.Context, event *dto.TicketEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PublisherNotifier.NotifyTicketEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, event.TicketID)
	span.SetTag("event.type", event.Type)

	if event.Type == "" {
		err := errors.New("ticket event without type")
		tracing.TraceErr(span, err)
		return err
	}

	err := n.publisher.PublishFanoutEvent(ctx, event.TicketID, event.Type, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "publish ticket event")
	}
	return nil
}

type logNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) interfaces.TicketNotifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) NotifyTicketEvent(ctx context.Context, event *dto.TicketEvent) error {
	n.log.Infof("ticket event %s: ticket %s (%s) from %s, message %s", event.Type, event.TicketCode, event.TicketID, event.From, event.TicketMessageID)
	return nil
}
