package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailintake/interfaces"
)

type Repositories struct {
	Transactor                        interfaces.Transactor
	MailboxRepository                 interfaces.MailboxRepository
	MailboxStateRepository            interfaces.MailboxStateRepository
	MailboxLeaseRepository            interfaces.MailboxLeaseRepository
	IngestLogRepository               interfaces.IngestLogRepository
	IngestRunRepository               interfaces.IngestRunRepository
	TicketMessageRepository           interfaces.TicketMessageRepository
	TicketMessageAttachmentRepository interfaces.TicketMessageAttachmentRepository
	AllowedSenderRepository           interfaces.AllowedSenderRepository
	TicketRepository                  interfaces.TicketRepository
	RequesterRepository               interfaces.RequesterRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transactor:                        NewGormTransactor(db),
		MailboxRepository:                 NewMailboxRepository(db),
		MailboxStateRepository:            NewMailboxStateRepository(db),
		MailboxLeaseRepository:            NewMailboxLeaseRepository(db),
		IngestLogRepository:               NewIngestLogRepository(db),
		IngestRunRepository:               NewIngestRunRepository(db),
		TicketMessageRepository:           NewTicketMessageRepository(db),
		TicketMessageAttachmentRepository: NewTicketMessageAttachmentRepository(db),
		AllowedSenderRepository:           NewAllowedSenderRepository(db),
		TicketRepository:                  NewTicketRepository(db),
		RequesterRepository:               NewRequesterRepository(db),
	}
}
