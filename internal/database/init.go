package database

import (
	"gorm.io/gorm"

	"github.com/customeros/mailintake/internal/models"
)

func InitMailintakeDatabase(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	return NewConnection(dbConfig)
}

// AllModels lists every table owned by the service, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Mailbox{},
		&models.MailboxState{},
		&models.MailboxLease{},
		&models.AllowedSender{},
		&models.Requester{},
		&models.Ticket{},
		&models.TicketComment{},
		&models.TicketMessage{},
		&models.TicketMessageAttachment{},
		&models.IngestLogEntry{},
		&models.IngestRun{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
