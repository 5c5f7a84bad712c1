package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/utils"
)

// IngestLogEntry is one row of the append-only ingest ledger.
type IngestLogEntry struct {
	ID          string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Mailbox     string            `gorm:"column:mailbox;type:varchar(100);not null;uniqueIndex:uq_ingest_log_mailbox_uid,priority:1" json:"mailbox"`
	UID         uint32            `gorm:"column:uid;not null;uniqueIndex:uq_ingest_log_mailbox_uid,priority:2" json:"uid"`
	MessageID   *string           `gorm:"column:message_id;type:varchar(998);index" json:"messageId,omitempty"`
	Status      enum.IngestStatus `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Reason      enum.IngestReason `gorm:"column:reason;type:varchar(50);not null;index" json:"reason"`
	ErrorDetail *string           `gorm:"column:error_detail;type:text" json:"errorDetail,omitempty"`
	TicketID    *string           `gorm:"column:ticket_id;type:varchar(50);index" json:"ticketId,omitempty"`
	RunID       string            `gorm:"column:run_id;type:varchar(50);index" json:"runId"`
	CreatedAt   time.Time         `gorm:"column:created_at;type:timestamp;not null;index" json:"createdAt"`
}

func (IngestLogEntry) TableName() string {
	return "ingest_log"
}

func (e *IngestLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("ilog", 16)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.Now()
	}
	return nil
}

// IngestRun is the persisted summary of a single mailbox run.
type IngestRun struct {
	ID                 string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Mailbox            string     `gorm:"column:mailbox;type:varchar(100);not null;index" json:"mailbox"`
	StartedAt          time.Time  `gorm:"column:started_at;type:timestamp;not null;index" json:"startedAt"`
	FinishedAt         *time.Time `gorm:"column:finished_at;type:timestamp" json:"finishedAt,omitempty"`
	Processed          int        `gorm:"column:processed;not null;default:0" json:"processed"`
	Skipped            int        `gorm:"column:skipped;not null;default:0" json:"skipped"`
	Failed             int        `gorm:"column:failed;not null;default:0" json:"failed"`
	DroppedAttachments int        `gorm:"column:dropped_attachments;not null;default:0" json:"droppedAttachments"`
	PreviousUID        uint32     `gorm:"column:previous_uid;not null;default:0" json:"previousUid"`
	Watermark          uint32     `gorm:"column:watermark;not null;default:0" json:"watermark"`
	Error              string     `gorm:"column:error;type:text" json:"error,omitempty"`
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}
