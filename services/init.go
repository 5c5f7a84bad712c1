package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/metrics"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/services/authorizer"
	"github.com/customeros/mailintake/services/email_filter"
	"github.com/customeros/mailintake/services/events"
	"github.com/customeros/mailintake/services/imap"
	"github.com/customeros/mailintake/services/ingest"
	"github.com/customeros/mailintake/services/lease"
	"github.com/customeros/mailintake/services/parser"
	"github.com/customeros/mailintake/services/storage"
	"github.com/customeros/mailintake/services/tickets"
)

type Services struct {
	EventsService      *events.EventsService
	EmailFilterService interfaces.EmailFilterService
	StorageService     interfaces.StorageService
	TicketService      interfaces.TicketService
	LeaseManager       interfaces.LeaseManager
	Authorizer         *authorizer.Authorizer
	Metrics            *metrics.Metrics
	Processor          *ingest.MessageProcessor
	Poller             *ingest.Poller
	Runner             *ingest.Runner
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, registerer prometheus.Registerer) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	storageService, err := storage.NewStorageService(cfg.StorageConfig)
	if err != nil {
		return nil, err
	}

	leaseManager, err := lease.NewLeaseManager(cfg.IngestConfig, cfg.RedisConfig, repos.MailboxLeaseRepository)
	if err != nil {
		return nil, err
	}

	ingestConfig := cfg.IngestConfig
	ticketService := tickets.NewTicketService(repos.TicketRepository, repos.RequesterRepository, ingestConfig.TicketCodePrefix)
	senderAuthorizer := authorizer.NewAuthorizer(repos.AllowedSenderRepository, ingestConfig.AllowUnknownSenders)
	emailFilter := email_filter.NewEmailFilterService()
	ingestMetrics := metrics.NewMetrics(registerer)

	processor := ingest.NewMessageProcessor(ingestConfig, ingest.Dependencies{
		Repositories: repos,
		Parser:       parser.NewParser(),
		Authorizer:   senderAuthorizer,
		EmailFilter:  emailFilter,
		Tickets:      ticketService,
		Storage:      storageService,
		Notifier:     eventsService.Notifier,
		Metrics:      ingestMetrics,
	}, log)

	holder := cfg.AppConfig.InstanceID
	if holder == "" {
		holder = "mailintake"
	}
	poller := ingest.NewPoller(ingestConfig, repos, imap.NewDialer(ingestConfig.IMAPDialTimeout, log), leaseManager,
		processor, ticketService, ingestMetrics, holder, log)

	services := Services{
		EventsService:      eventsService,
		EmailFilterService: emailFilter,
		StorageService:     storageService,
		TicketService:      ticketService,
		LeaseManager:       leaseManager,
		Authorizer:         senderAuthorizer,
		Metrics:            ingestMetrics,
		Processor:          processor,
		Poller:             poller,
		Runner:             ingest.NewRunner(poller, repos.MailboxRepository, ingestConfig.MaxConcurrentMailboxes, log),
	}

	return &services, nil
}

// Close waits for pending ticket notifications before closing the publisher.
func (s *Services) Close() error {
	s.Processor.WaitNotifications()
	return s.EventsService.Close()
}
